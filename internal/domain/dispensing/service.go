package dispensing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/cart"
	"github.com/hms/hms/internal/domain/inventory"
	"github.com/hms/hms/internal/domain/medication"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/pkg/apperror"
)

// TxRunner executes fn inside a serializable database transaction. The
// whole dispensing pass commits or rolls back as one unit.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// CartAccess is the row-level slice of cart.Repository the executor locks
// through.
type CartAccess interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*cart.Cart, error)
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*cart.CartItem, error)
	UpdateItem(ctx context.Context, item *cart.CartItem) error
}

// CartLifecycle is the status logic owned by cart.Service.
type CartLifecycle interface {
	CanCompleteDispensing(ctx context.Context, cartID uuid.UUID) (bool, string, error)
	RecomputeStatus(ctx context.Context, cartID uuid.UUID) error
}

// PrescriptionAccess is the slice of prescription.Service the executor
// advances.
type PrescriptionAccess interface {
	Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
	RecordDispense(ctx context.Context, itemID uuid.UUID, quantity int) (*prescription.Item, error)
}

// Stock deducts inventory FEFO and names dispensaries. Satisfied by
// inventory.Service.
type Stock interface {
	Deduct(ctx context.Context, dispensaryID, medicationID uuid.UUID, quantity int) ([]inventory.BatchDeduction, error)
	GetDispensary(ctx context.Context, id uuid.UUID) (*inventory.Dispensary, error)
}

type Catalog interface {
	GetMedication(ctx context.Context, id uuid.UUID) (*medication.Medication, error)
}

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Notifier interface {
	NotifyPrescriptionDispensed(ctx context.Context, recipient, patientName, medication, dispensary string)
}

type Auditor interface {
	RecordAction(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action, detail string) error
}

type Service struct {
	logs          Repository
	carts         CartAccess
	cartLifecycle CartLifecycle
	prescriptions PrescriptionAccess
	stock         Stock
	catalog       Catalog
	patients      PatientDirectory
	notifier      Notifier
	auditor       Auditor
	tx            TxRunner
}

func NewService(logs Repository, carts CartAccess, cartLifecycle CartLifecycle, prescriptions PrescriptionAccess, stock Stock, catalog Catalog, patients PatientDirectory, notifier Notifier, auditor Auditor, tx TxRunner) *Service {
	return &Service{
		logs:          logs,
		carts:         carts,
		cartLifecycle: cartLifecycle,
		prescriptions: prescriptions,
		stock:         stock,
		catalog:       catalog,
		patients:      patients,
		notifier:      notifier,
		auditor:       auditor,
		tx:            tx,
	}
}

// Execute runs one dispensing pass over the cart. Every selection entry is
// locked, checked against the quantity still owed within the cart, deducted
// FEFO from the bound dispensary and written to the log. Entries with
// nothing left to dispense are skipped with a warning; any real failure
// rolls the whole pass back.
func (s *Service) Execute(ctx context.Context, cartID uuid.UUID, selections []Selection, userID string) (*Result, error) {
	if len(selections) == 0 {
		return nil, fmt.Errorf("nothing selected for dispensing: %w", apperror.ErrInvalidAmount)
	}
	ok, reason, err := s.cartLifecycle.CanCompleteDispensing(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dispensing blocked: %s: %w", reason, apperror.ErrInvalidState)
	}

	result := &Result{CartID: cartID}
	var dispensedMeds []uuid.UUID
	var prescriptionID uuid.UUID
	var dispensaryID uuid.UUID

	err = s.tx(ctx, func(ctx context.Context) error {
		// reset in case of serialization retry
		result.Logs = nil
		result.Warnings = nil
		dispensedMeds = nil

		c, err := s.carts.GetByIDForUpdate(ctx, cartID)
		if err != nil {
			return fmt.Errorf("cart %s: %w", cartID, apperror.ErrNotFound)
		}
		// The pre-flight check ran outside the transaction; the cart and
		// prescription could have moved before the lock was taken.
		if c.Status != cart.CartPaid && c.Status != cart.CartPartiallyDispensed {
			return fmt.Errorf("cart is %s: %w", c.Status, apperror.ErrInvalidState)
		}
		if c.DispensaryID == nil {
			return fmt.Errorf("cart has no dispensary bound: %w", apperror.ErrInvalidState)
		}
		p, err := s.prescriptions.Get(ctx, c.PrescriptionID)
		if err != nil {
			return fmt.Errorf("prescription %s: %w", c.PrescriptionID, apperror.ErrNotFound)
		}
		if ok, blocked := prescription.CanBeDispensed(p); !ok {
			return fmt.Errorf("dispensing blocked: %s: %w", blocked, apperror.ErrInvalidState)
		}
		prescriptionID = c.PrescriptionID
		dispensaryID = *c.DispensaryID
		now := time.Now()

		for _, sel := range selections {
			if sel.Quantity <= 0 {
				return fmt.Errorf("dispense quantity must be positive: %w", apperror.ErrInvalidAmount)
			}
			item, err := s.carts.GetItemForUpdate(ctx, sel.CartItemID)
			if err != nil || item.CartID != cartID {
				return fmt.Errorf("cart item %s: %w", sel.CartItemID, apperror.ErrNotFound)
			}
			remaining := item.RemainingInCart()
			if remaining == 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("cart item %s is already fully dispensed, skipped", item.ID))
				continue
			}
			if sel.Quantity > remaining {
				return fmt.Errorf("requested %d but only %d remains for cart item %s: %w",
					sel.Quantity, remaining, item.ID, apperror.ErrInvalidState)
			}

			medID := item.EffectiveMedicationID()
			deductions, err := s.stock.Deduct(ctx, dispensaryID, medID, sel.Quantity)
			if err != nil {
				return err
			}
			for _, d := range deductions {
				log := &Log{
					PrescriptionItemID: item.PrescriptionItemID,
					CartItemID:         item.ID,
					MedicationID:       medID,
					DispensaryID:       dispensaryID,
					BatchNumber:        d.BatchNumber,
					Quantity:           d.Quantity,
					UnitPrice:          item.UnitPriceSnapshot,
					Total:              int64(d.Quantity) * item.UnitPriceSnapshot,
					DispensedBy:        userID,
					DispensedAt:        now,
				}
				if err := s.logs.Create(ctx, log); err != nil {
					return err
				}
				result.Logs = append(result.Logs, log)
			}

			item.QuantityDispensed += sel.Quantity
			if err := s.carts.UpdateItem(ctx, item); err != nil {
				return err
			}

			pItem, err := s.prescriptions.RecordDispense(ctx, item.PrescriptionItemID, sel.Quantity)
			if err != nil {
				return err
			}
			if item.QuantityDispensed > pItem.QuantityPrescribed {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("cart item %s dispensed %d against %d prescribed",
						item.ID, item.QuantityDispensed, pItem.QuantityPrescribed))
			}
			dispensedMeds = append(dispensedMeds, medID)
		}

		if len(result.Logs) == 0 {
			return fmt.Errorf("no dispensable quantity in selection: %w", apperror.ErrInvalidState)
		}
		if err := s.cartLifecycle.RecomputeStatus(ctx, cartID); err != nil {
			return err
		}
		return s.auditor.RecordAction(ctx, userID, "cart", cartID, "dispense",
			fmt.Sprintf("%d log rows written", len(result.Logs)))
	})
	if err != nil {
		return nil, err
	}

	s.notifyDispensed(ctx, prescriptionID, dispensaryID, dispensedMeds)
	return result, nil
}

// notifyDispensed is best effort; lookup failures drop the notification
// rather than the committed dispense.
func (s *Service) notifyDispensed(ctx context.Context, prescriptionID, dispensaryID uuid.UUID, medIDs []uuid.UUID) {
	p, err := s.prescriptions.Get(ctx, prescriptionID)
	if err != nil {
		return
	}
	pt, err := s.patients.GetPatient(ctx, p.PatientID)
	if err != nil {
		return
	}
	disp, err := s.stock.GetDispensary(ctx, dispensaryID)
	if err != nil {
		return
	}
	patientName := pt.FirstName + " " + pt.LastName
	for _, medID := range medIDs {
		med, err := s.catalog.GetMedication(ctx, medID)
		if err != nil {
			continue
		}
		s.notifier.NotifyPrescriptionDispensed(ctx, p.ClinicianID, patientName, med.Name, disp.Name)
	}
}

func (s *Service) HistoryForPrescriptionItem(ctx context.Context, prescriptionItemID uuid.UUID) ([]*Log, error) {
	return s.logs.ListByPrescriptionItem(ctx, prescriptionItemID)
}

func (s *Service) HistoryForDispensary(ctx context.Context, dispensaryID uuid.UUID, limit, offset int) ([]*Log, int, error) {
	return s.logs.ListByDispensary(ctx, dispensaryID, limit, offset)
}

package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/authorization"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/medication"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/pkg/apperror"
)

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PrescriptionStore is the slice of prescription.Service the cart needs.
type PrescriptionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Catalog resolves medications for pricing. Satisfied by medication.Service.
type Catalog interface {
	GetMedication(ctx context.Context, id uuid.UUID) (*medication.Medication, error)
}

// PatientDirectory resolves the patient for the insured pricing split.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// StockReader answers availability questions against the bound dispensary.
// Satisfied by inventory.Service.
type StockReader interface {
	Available(ctx context.Context, dispensaryID, medicationID uuid.UUID) (int, error)
}

// InvoiceStore is the slice of billing.Service the cart drives.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *billing.Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error)
	CancelUnpaid(ctx context.Context, id uuid.UUID) error
}

// CodeReader resolves the code a prescription was authorized under so
// checkout can hold the invoice to its amount cap. Satisfied by
// authorization.Service.
type CodeReader interface {
	Get(ctx context.Context, id uuid.UUID) (*authorization.Code, error)
}

// Auditor records the auto-heal promotions and other silent transitions.
type Auditor interface {
	RecordAction(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action, detail string) error
}

type Service struct {
	carts         Repository
	prescriptions PrescriptionStore
	catalog       Catalog
	patients      PatientDirectory
	stock         StockReader
	invoices      InvoiceStore
	codes         CodeReader
	auditor       Auditor
	tx            TxRunner
}

func NewService(carts Repository, prescriptions PrescriptionStore, catalog Catalog, patients PatientDirectory, stock StockReader, invoices InvoiceStore, codes CodeReader, auditor Auditor, tx TxRunner) *Service {
	return &Service{
		carts:         carts,
		prescriptions: prescriptions,
		catalog:       catalog,
		patients:      patients,
		stock:         stock,
		invoices:      invoices,
		codes:         codes,
		auditor:       auditor,
		tx:            tx,
	}
}

// OpenCart starts a working set for the prescription. Only one active cart
// may exist per prescription at a time.
func (s *Service) OpenCart(ctx context.Context, prescriptionID uuid.UUID, pharmacistID string) (*Cart, error) {
	p, err := s.prescriptions.Get(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("prescription %s: %w", prescriptionID, apperror.ErrNotFound)
	}
	if p.Status == prescription.StatusCancelled || p.Status == prescription.StatusDispensed {
		return nil, fmt.Errorf("prescription is %s: %w", p.Status, apperror.ErrInvalidState)
	}
	existing, err := s.carts.GetActiveByPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("prescription already has an active cart: %w", apperror.ErrConstraintViolation)
	}
	c := &Cart{
		PrescriptionID: prescriptionID,
		PharmacistID:   pharmacistID,
		Status:         CartActive,
	}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads the cart and repairs the invoiced-but-paid drift: an invoice
// paid out-of-band by the billing office promotes the cart to paid on read,
// with an audit entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Cart, error) {
	c, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cart %s: %w", id, apperror.ErrNotFound)
	}
	return s.heal(ctx, c)
}

func (s *Service) heal(ctx context.Context, c *Cart) (*Cart, error) {
	if c.Status != CartInvoiced || c.InvoiceID == nil {
		return c, nil
	}
	inv, err := s.invoices.GetInvoice(ctx, *c.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", *c.InvoiceID, err)
	}
	if inv.Status != billing.InvoicePaid {
		return c, nil
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		locked, err := s.carts.GetByIDForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}
		if locked.Status != CartInvoiced {
			c = locked
			return nil
		}
		locked.Status = CartPaid
		if err := s.carts.Update(ctx, locked); err != nil {
			return err
		}
		c = locked
		return s.auditor.RecordAction(ctx, "system", "cart", c.ID, "auto_heal_paid",
			fmt.Sprintf("invoice %s observed paid", inv.ID))
	})
	return c, err
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Cart, int, error) {
	return s.carts.Search(ctx, params, limit, offset)
}

func (s *Service) activeCart(ctx context.Context, id uuid.UUID) (*Cart, error) {
	c, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cart %s: %w", id, apperror.ErrNotFound)
	}
	if c.Status != CartActive {
		return nil, fmt.Errorf("cart is %s, not active: %w", c.Status, apperror.ErrInvalidState)
	}
	return c, nil
}

// BindDispensary points the cart at the store it will dispense from and
// refreshes the stock snapshots of any items already added.
func (s *Service) BindDispensary(ctx context.Context, cartID, dispensaryID uuid.UUID) (*Cart, error) {
	c, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	c.DispensaryID = &dispensaryID
	if err := s.carts.Update(ctx, c); err != nil {
		return nil, err
	}
	for _, item := range c.Items {
		available, err := s.stock.Available(ctx, dispensaryID, item.EffectiveMedicationID())
		if err != nil {
			return nil, err
		}
		item.AvailableStockSnapshot = available
		if err := s.carts.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddItem puts a prescription item into the cart. The requested quantity
// may exceed the prescribed remainder; the pharmacist is authoritative and
// stock at invoice time is the only hard floor.
func (s *Service) AddItem(ctx context.Context, cartID, prescriptionItemID uuid.UUID, quantity int) (*CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", apperror.ErrInvalidAmount)
	}
	c, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.DispensaryID == nil {
		return nil, fmt.Errorf("cart has no dispensary bound: %w", apperror.ErrInvalidState)
	}
	p, err := s.prescriptions.Get(ctx, c.PrescriptionID)
	if err != nil {
		return nil, fmt.Errorf("prescription %s: %w", c.PrescriptionID, apperror.ErrNotFound)
	}
	var pItem *prescription.Item
	for _, it := range p.Items {
		if it.ID == prescriptionItemID {
			pItem = it
		}
	}
	if pItem == nil {
		return nil, fmt.Errorf("prescription item %s does not belong to this prescription: %w",
			prescriptionItemID, apperror.ErrConstraintViolation)
	}
	for _, existing := range c.Items {
		if existing.PrescriptionItemID == prescriptionItemID {
			return nil, fmt.Errorf("prescription item already in cart: %w", apperror.ErrConstraintViolation)
		}
	}
	med, err := s.catalog.GetMedication(ctx, pItem.MedicationID)
	if err != nil {
		return nil, fmt.Errorf("medication %s: %w", pItem.MedicationID, apperror.ErrNotFound)
	}
	available, err := s.stock.Available(ctx, *c.DispensaryID, med.ID)
	if err != nil {
		return nil, err
	}
	item := &CartItem{
		CartID:                 cartID,
		PrescriptionItemID:     prescriptionItemID,
		MedicationID:           med.ID,
		Quantity:               quantity,
		UnitPriceSnapshot:      med.UnitPrice,
		AvailableStockSnapshot: available,
	}
	if err := s.carts.AddItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) AdjustQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", apperror.ErrInvalidAmount)
	}
	if _, err := s.activeCart(ctx, cartID); err != nil {
		return nil, err
	}
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil || item.CartID != cartID {
		return nil, fmt.Errorf("cart item %s: %w", itemID, apperror.ErrNotFound)
	}
	item.Quantity = quantity
	if err := s.carts.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	if _, err := s.activeCart(ctx, cartID); err != nil {
		return err
	}
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil || item.CartID != cartID {
		return fmt.Errorf("cart item %s: %w", itemID, apperror.ErrNotFound)
	}
	return s.carts.RemoveItem(ctx, itemID)
}

// Substitute swaps the medication used for pricing and stock while leaving
// the prescription item's clinical record untouched. Only permitted on an
// active cart before any quantity has been dispensed for the item.
func (s *Service) Substitute(ctx context.Context, cartID, itemID, substituteID uuid.UUID, reason, actorID string) (*CartItem, error) {
	if reason == "" {
		return nil, fmt.Errorf("substitution reason is required")
	}
	c, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil || item.CartID != cartID {
		return nil, fmt.Errorf("cart item %s: %w", itemID, apperror.ErrNotFound)
	}
	if item.QuantityDispensed > 0 {
		return nil, fmt.Errorf("item already has dispensed quantity: %w", apperror.ErrInvalidState)
	}
	sub, err := s.catalog.GetMedication(ctx, substituteID)
	if err != nil {
		return nil, fmt.Errorf("medication %s: %w", substituteID, apperror.ErrNotFound)
	}
	if !sub.IsActive {
		return nil, fmt.Errorf("substitute medication is inactive: %w", apperror.ErrInvalidState)
	}
	now := time.Now()
	item.SubstituteMedicationID = &sub.ID
	item.SubstituteReason = reason
	item.SubstitutedBy = actorID
	item.SubstitutedAt = &now
	item.UnitPriceSnapshot = sub.UnitPrice
	if c.DispensaryID != nil {
		available, err := s.stock.Available(ctx, *c.DispensaryID, sub.ID)
		if err != nil {
			return nil, err
		}
		item.AvailableStockSnapshot = available
	}
	if err := s.carts.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GenerateInvoice checks out the cart. Preconditions: active cart with a
// bound dispensary and at least one item, authorization satisfied, subtotal
// within the authorization code's amount cap, full stock for every requested
// quantity. For insured patients the invoice collects the 10% patient share
// and records the 90% insurer portion.
func (s *Service) GenerateInvoice(ctx context.Context, cartID uuid.UUID) (*billing.Invoice, error) {
	var inv *billing.Invoice
	err := s.tx(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetByIDForUpdate(ctx, cartID)
		if err != nil {
			return fmt.Errorf("cart %s: %w", cartID, apperror.ErrNotFound)
		}
		if c.Status != CartActive {
			return fmt.Errorf("cart is %s, not active: %w", c.Status, apperror.ErrInvalidState)
		}
		if len(c.Items) == 0 {
			return fmt.Errorf("cart has no items: %w", apperror.ErrInvalidState)
		}
		if c.DispensaryID == nil {
			return fmt.Errorf("cart has no dispensary bound: %w", apperror.ErrInvalidState)
		}
		p, err := s.prescriptions.Get(ctx, c.PrescriptionID)
		if err != nil {
			return fmt.Errorf("prescription %s: %w", c.PrescriptionID, apperror.ErrNotFound)
		}
		if p.Status == prescription.StatusCancelled {
			return fmt.Errorf("prescription is cancelled: %w", apperror.ErrInvalidState)
		}
		switch p.AuthorizationStatus {
		case prescription.AuthRequired:
			return fmt.Errorf("prescription awaits desk office authorization: %w", apperror.ErrAuthorizationRequired)
		case prescription.AuthRejected:
			return fmt.Errorf("authorization was rejected: %w", apperror.ErrAuthorizationRequired)
		}

		var items []*billing.InvoiceItem
		var subtotal int64
		for _, item := range c.Items {
			available, err := s.stock.Available(ctx, *c.DispensaryID, item.EffectiveMedicationID())
			if err != nil {
				return err
			}
			item.AvailableStockSnapshot = available
			if err := s.carts.UpdateItem(ctx, item); err != nil {
				return err
			}
			if available < item.Quantity {
				return fmt.Errorf("only %d of %d available for medication %s: %w",
					available, item.Quantity, item.EffectiveMedicationID(), apperror.ErrInsufficientStock)
			}
			med, err := s.catalog.GetMedication(ctx, item.EffectiveMedicationID())
			if err != nil {
				return fmt.Errorf("medication %s: %w", item.EffectiveMedicationID(), apperror.ErrNotFound)
			}
			lineTotal := int64(item.Quantity) * item.UnitPriceSnapshot
			subtotal += lineTotal
			items = append(items, &billing.InvoiceItem{
				MedicationID: med.ID,
				Description:  med.Name,
				Quantity:     item.Quantity,
				UnitPrice:    item.UnitPriceSnapshot,
			})
		}

		if p.AuthorizationCodeID != nil {
			code, err := s.codes.Get(ctx, *p.AuthorizationCodeID)
			if err != nil {
				return fmt.Errorf("authorization code %s: %w", *p.AuthorizationCodeID, apperror.ErrNotFound)
			}
			if code.AmountCap > 0 && subtotal > code.AmountCap {
				return fmt.Errorf("subtotal %d exceeds authorization cap %d: %w",
					subtotal, code.AmountCap, apperror.ErrInvalidAmount)
			}
		}

		pt, err := s.patients.GetPatient(ctx, p.PatientID)
		if err != nil {
			return fmt.Errorf("patient %s: %w", p.PatientID, apperror.ErrNotFound)
		}
		prescriptionID := p.ID
		inv = &billing.Invoice{
			PatientID:      p.PatientID,
			PrescriptionID: &prescriptionID,
			Items:          items,
		}
		if pt.IsNHIA() {
			inv.NHIACoverage = subtotal * 90 / 100
		}
		if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		c.InvoiceID = &inv.ID
		c.Status = CartInvoiced
		return s.carts.Update(ctx, c)
	})
	return inv, err
}

// CanCompleteDispensing reports whether a dispensing pass may run now. The
// invoiced-with-paid-invoice case is healed first.
func (s *Service) CanCompleteDispensing(ctx context.Context, cartID uuid.UUID) (bool, string, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return false, "", err
	}
	if c.Status != CartPaid && c.Status != CartPartiallyDispensed {
		return false, fmt.Sprintf("cart is %s", c.Status), nil
	}
	if c.InvoiceID == nil {
		return false, "cart has no invoice", nil
	}
	inv, err := s.invoices.GetInvoice(ctx, *c.InvoiceID)
	if err != nil {
		return false, "", err
	}
	if inv.Status != billing.InvoicePaid {
		return false, "invoice is not paid", nil
	}
	for _, item := range c.Items {
		if item.RemainingInCart() > 0 {
			return true, "", nil
		}
	}
	return false, "all items are dispensed", nil
}

// RecomputeStatus rolls cart status up from its items after a dispensing
// pass. Runs inside the dispensing transaction.
func (s *Service) RecomputeStatus(ctx context.Context, cartID uuid.UUID) error {
	c, err := s.carts.GetByIDForUpdate(ctx, cartID)
	if err != nil {
		return fmt.Errorf("cart %s: %w", cartID, apperror.ErrNotFound)
	}
	if c.Status == CartCancelled || c.Status == CartCompleted {
		return nil
	}
	all := len(c.Items) > 0
	any := false
	for _, item := range c.Items {
		if item.RemainingInCart() > 0 {
			all = false
		}
		if item.QuantityDispensed > 0 {
			any = true
		}
	}
	next := c.Status
	switch {
	case all:
		next = CartCompleted
	case any:
		next = CartPartiallyDispensed
	}
	if next == c.Status {
		return nil
	}
	c.Status = next
	return s.carts.Update(ctx, c)
}

// CancelCart abandons the cart and cancels its unpaid invoice. Paid
// invoices are never auto-refunded.
func (s *Service) CancelCart(ctx context.Context, cartID uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetByIDForUpdate(ctx, cartID)
		if err != nil {
			return fmt.Errorf("cart %s: %w", cartID, apperror.ErrNotFound)
		}
		return s.cancelLocked(ctx, c)
	})
}

func (s *Service) cancelLocked(ctx context.Context, c *Cart) error {
	if c.Status == CartCompleted {
		return fmt.Errorf("completed cart cannot be cancelled: %w", apperror.ErrInvalidState)
	}
	if c.Status == CartCancelled {
		return nil
	}
	if c.InvoiceID != nil {
		inv, err := s.invoices.GetInvoice(ctx, *c.InvoiceID)
		if err != nil {
			return err
		}
		if inv.AmountPaid == 0 && (inv.Status == billing.InvoiceDraft || inv.Status == billing.InvoicePending) {
			if err := s.invoices.CancelUnpaid(ctx, *c.InvoiceID); err != nil {
				return err
			}
		}
	}
	c.Status = CartCancelled
	return s.carts.Update(ctx, c)
}

// CancelPrescription cancels the prescription and cascades: open carts are
// cancelled, their unpaid invoices are cancelled, paid invoices stay for
// desk office refund handling.
func (s *Service) CancelPrescription(ctx context.Context, prescriptionID uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		if err := s.prescriptions.Cancel(ctx, prescriptionID); err != nil {
			return err
		}
		carts, err := s.carts.ListByPrescription(ctx, prescriptionID)
		if err != nil {
			return err
		}
		for _, c := range carts {
			if c.Status == CartCompleted || c.Status == CartCancelled {
				continue
			}
			locked, err := s.carts.GetByIDForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			if err := s.cancelLocked(ctx, locked); err != nil {
				return err
			}
		}
		return nil
	})
}

package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/apperror"
)

// Gate decides whether a new prescription needs desk-office authorization.
// Satisfied by authorization.Service.
type Gate interface {
	PrescriptionRequiresAuthorization(ctx context.Context, patientID uuid.UUID, clinicianDepartment string) (bool, error)
}

// Auditor records state transitions that must leave a trail. Satisfied by
// audit.Service.
type Auditor interface {
	RecordAction(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action, detail string) error
}

type Service struct {
	prescriptions Repository
	gate          Gate
	auditor       Auditor
}

func NewService(prescriptions Repository, gate Gate, auditor Auditor) *Service {
	return &Service{prescriptions: prescriptions, gate: gate, auditor: auditor}
}

var validTypes = map[string]bool{
	TypeOutpatient: true, TypeInpatient: true,
}

func (s *Service) Create(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.ClinicianID == "" {
		return fmt.Errorf("clinician_id is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("prescription requires at least one item")
	}
	for _, item := range p.Items {
		if item.MedicationID == uuid.Nil {
			return fmt.Errorf("medication_id is required on every item")
		}
		if item.QuantityPrescribed <= 0 {
			return fmt.Errorf("quantity_prescribed must be positive: %w", apperror.ErrInvalidAmount)
		}
	}
	if p.PrescriptionType == "" {
		p.PrescriptionType = TypeOutpatient
	}
	if !validTypes[p.PrescriptionType] {
		return fmt.Errorf("invalid prescription_type: %s", p.PrescriptionType)
	}
	if p.Date.IsZero() {
		p.Date = time.Now()
	}
	p.Status = StatusPending
	p.PaymentStatus = PaymentUnpaid

	required, err := s.gate.PrescriptionRequiresAuthorization(ctx, p.PatientID, p.ClinicianDepartment)
	if err != nil {
		return err
	}
	p.AuthorizationRequired = required
	if required {
		p.AuthorizationStatus = AuthRequired
	} else {
		p.AuthorizationStatus = AuthNotRequired
	}
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.Search(ctx, params, limit, offset)
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, map[string]bool{StatusPending: true}, StatusApproved)
}

func (s *Service) Hold(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, map[string]bool{StatusPending: true, StatusApproved: true}, StatusOnHold)
}

func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, map[string]bool{StatusOnHold: true}, StatusPending)
}

// Cancel is permitted from any state before dispensing has started.
// Cascading (active carts, unpaid invoices) is handled by the cart service.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, map[string]bool{
		StatusPending: true, StatusApproved: true, StatusOnHold: true,
	}, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from map[string]bool, to string) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	if !from[p.Status] {
		return fmt.Errorf("prescription is %s, cannot move to %s: %w", p.Status, to, apperror.ErrInvalidState)
	}
	p.Status = to
	return s.prescriptions.Update(ctx, p)
}

// MarkPaid is called when the prescription's invoice reaches paid.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	p.PaymentStatus = PaymentPaid
	return s.prescriptions.Update(ctx, p)
}

func (s *Service) Waive(ctx context.Context, id uuid.UUID, actorID string) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	p.PaymentStatus = PaymentWaived
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return err
	}
	return s.auditor.RecordAction(ctx, actorID, "prescription", id, "waive_payment", "payment waived")
}

// Authorize moves required → authorized on presentation of a consumed code.
func (s *Service) Authorize(ctx context.Context, id uuid.UUID, codeID uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	if p.AuthorizationStatus != AuthRequired {
		return fmt.Errorf("prescription authorization is %s: %w", p.AuthorizationStatus, apperror.ErrInvalidState)
	}
	p.AuthorizationStatus = AuthAuthorized
	p.AuthorizationCodeID = &codeID
	return s.prescriptions.Update(ctx, p)
}

// RejectAuthorization blocks the prescription indefinitely.
func (s *Service) RejectAuthorization(ctx context.Context, id uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	if p.AuthorizationStatus != AuthRequired {
		return fmt.Errorf("prescription authorization is %s: %w", p.AuthorizationStatus, apperror.ErrInvalidState)
	}
	p.AuthorizationStatus = AuthRejected
	return s.prescriptions.Update(ctx, p)
}

// OverrideAuthorization is the audited administrative escape hatch.
func (s *Service) OverrideAuthorization(ctx context.Context, id uuid.UUID, actorID, reason string) error {
	if reason == "" {
		return fmt.Errorf("override reason is required")
	}
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	if p.AuthorizationStatus != AuthRequired && p.AuthorizationStatus != AuthRejected {
		return fmt.Errorf("prescription authorization is %s: %w", p.AuthorizationStatus, apperror.ErrInvalidState)
	}
	p.AuthorizationStatus = AuthAuthorized
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return err
	}
	return s.auditor.RecordAction(ctx, actorID, "prescription", id, "authorization_override", reason)
}

// CanBeDispensed reports whether dispensing may proceed, with the blocking
// reason when it may not.
func CanBeDispensed(p *Prescription) (bool, string) {
	switch p.Status {
	case StatusCancelled:
		return false, "prescription is cancelled"
	case StatusDispensed:
		return false, "prescription is fully dispensed"
	}
	if p.AuthorizationStatus == AuthRequired {
		return false, "authorization is required"
	}
	if p.AuthorizationStatus == AuthRejected {
		return false, "authorization was rejected"
	}
	if p.PrescriptionType == TypeOutpatient && p.PaymentStatus == PaymentUnpaid {
		return false, "payment is outstanding"
	}
	return true, ""
}

// RecordDispense adds quantity to the item's dispensed tally, clamped at the
// prescribed amount, and rolls the prescription status up. Returns the
// updated item. Must run inside the dispensing transaction.
func (s *Service) RecordDispense(ctx context.Context, itemID uuid.UUID, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("dispense quantity must be positive: %w", apperror.ErrInvalidAmount)
	}
	item, err := s.prescriptions.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("prescription item %s: %w", itemID, apperror.ErrNotFound)
	}
	item.QuantityDispensed += quantity
	if item.QuantityDispensed > item.QuantityPrescribed {
		item.QuantityDispensed = item.QuantityPrescribed
	}
	if item.QuantityDispensed >= item.QuantityPrescribed && !item.IsDispensed {
		item.IsDispensed = true
		now := time.Now()
		item.DispensedAt = &now
	}
	if err := s.prescriptions.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	if err := s.RollupStatus(ctx, item.PrescriptionID); err != nil {
		return nil, err
	}
	return item, nil
}

// RollupStatus recomputes the prescription status from its items.
func (s *Service) RollupStatus(ctx context.Context, id uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("prescription %s: %w", id, apperror.ErrNotFound)
	}
	if p.Status == StatusCancelled {
		return nil
	}
	all := true
	any := false
	for _, item := range p.Items {
		if !item.IsDispensed {
			all = false
		}
		if item.QuantityDispensed > 0 {
			any = true
		}
	}
	next := p.Status
	switch {
	case len(p.Items) > 0 && all:
		next = StatusDispensed
	case any:
		next = StatusPartiallyDispensed
	}
	if next == p.Status {
		return nil
	}
	p.Status = next
	return s.prescriptions.Update(ctx, p)
}

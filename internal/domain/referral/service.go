package referral

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/pkg/apperror"
)

// Gate decides whether the referral crosses the insured/non-insured
// boundary. Satisfied by authorization.Service.
type Gate interface {
	ReferralRequiresAuthorization(ctx context.Context, patientID uuid.UUID, fromDepartment, toDepartment string) (bool, error)
}

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Notifier carries referral traffic to the receiving department and back
// to the referring clinician on rejection.
type Notifier interface {
	NotifyReferralCreated(ctx context.Context, recipient, patientName, department, reason string)
}

type Auditor interface {
	RecordAction(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action, detail string) error
}

type Service struct {
	referrals Repository
	gate      Gate
	patients  PatientDirectory
	notifier  Notifier
	auditor   Auditor
}

func NewService(referrals Repository, gate Gate, patients PatientDirectory, notifier Notifier, auditor Auditor) *Service {
	return &Service{referrals: referrals, gate: gate, patients: patients, notifier: notifier, auditor: auditor}
}

var validTypes = map[string]bool{
	TypeDepartment: true, TypeSpecialty: true, TypeUnit: true, TypeDoctor: true,
}

// Create routes the referral. The owning department is derived from the
// specialty or unit when absent; a supplied department that disagrees with
// the routing table is corrected to the derived one.
func (s *Service) Create(ctx context.Context, r *Referral) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.ReferringClinicianID == "" {
		return fmt.Errorf("referring_clinician_id is required")
	}
	if r.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	if !validTypes[r.ReferralType] {
		return fmt.Errorf("invalid referral_type: %s", r.ReferralType)
	}

	switch r.ReferralType {
	case TypeSpecialty:
		if r.TargetSpecialty == "" {
			return fmt.Errorf("target_specialty is required for specialty referrals")
		}
		if dept, ok := DepartmentForSpecialty(r.TargetSpecialty); ok {
			r.TargetDepartment = dept
		}
	case TypeUnit:
		if r.TargetUnit == "" {
			return fmt.Errorf("target_unit is required for unit referrals")
		}
		if dept, ok := DepartmentForUnit(r.TargetUnit); ok {
			r.TargetDepartment = dept
		}
	}
	if r.TargetDepartment == "" {
		return fmt.Errorf("target department could not be resolved")
	}

	pt, err := s.patients.GetPatient(ctx, r.PatientID)
	if err != nil {
		return fmt.Errorf("patient %s: %w", r.PatientID, apperror.ErrNotFound)
	}
	required, err := s.gate.ReferralRequiresAuthorization(ctx, r.PatientID, r.ReferringDepartment, r.TargetDepartment)
	if err != nil {
		return err
	}
	r.RequiresAuthorization = required
	if required {
		r.AuthorizationStatus = AuthRequired
	} else {
		r.AuthorizationStatus = AuthNotRequired
	}
	r.Status = StatusPending
	if err := s.referrals.Create(ctx, r); err != nil {
		return err
	}
	s.notifier.NotifyReferralCreated(ctx, r.TargetDepartment, pt.FirstName+" "+pt.LastName, r.TargetDepartment, r.Reason)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.referrals.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Referral, int, error) {
	return s.referrals.Search(ctx, params, limit, offset)
}

// Accept assigns the referral to the accepting clinician. Blocked while
// the boundary gate is unsatisfied.
func (s *Service) Accept(ctx context.Context, id uuid.UUID, clinicianID string) error {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("referral is %s: %w", r.Status, apperror.ErrInvalidState)
	}
	if r.AuthorizationStatus == AuthRequired {
		return fmt.Errorf("referral awaits desk office authorization: %w", apperror.ErrAuthorizationRequired)
	}
	if r.AuthorizationStatus == AuthRejected {
		return fmt.Errorf("authorization was rejected: %w", apperror.ErrAuthorizationRequired)
	}
	r.Status = StatusAccepted
	r.AssignedClinicianID = clinicianID
	return s.referrals.Update(ctx, r)
}

// Reject cancels the referral with a mandatory reason and tells the
// referring clinician.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	if reason == "" {
		return fmt.Errorf("rejection reason is required")
	}
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("referral is %s: %w", r.Status, apperror.ErrInvalidState)
	}
	r.Status = StatusCancelled
	r.RejectionReason = reason
	if err := s.referrals.Update(ctx, r); err != nil {
		return err
	}
	pt, err := s.patients.GetPatient(ctx, r.PatientID)
	if err == nil {
		s.notifier.NotifyReferralCreated(ctx, r.ReferringClinicianID,
			pt.FirstName+" "+pt.LastName, r.TargetDepartment, "rejected: "+reason)
	}
	return nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
	}
	if r.Status != StatusAccepted {
		return fmt.Errorf("referral is %s: %w", r.Status, apperror.ErrInvalidState)
	}
	r.Status = StatusCompleted
	return s.referrals.Update(ctx, r)
}

// Cancel is permitted from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
	}
	if r.Status == StatusCompleted || r.Status == StatusCancelled {
		return fmt.Errorf("referral is %s: %w", r.Status, apperror.ErrInvalidState)
	}
	r.Status = StatusCancelled
	return s.referrals.Update(ctx, r)
}

// Authorize stamps a consumed desk office code on the referral.
func (s *Service) Authorize(ctx context.Context, id uuid.UUID, codeID uuid.UUID) error {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
	}
	if r.AuthorizationStatus != AuthRequired {
		return fmt.Errorf("referral authorization is %s: %w", r.AuthorizationStatus, apperror.ErrInvalidState)
	}
	r.AuthorizationStatus = AuthAuthorized
	r.AuthorizationCodeID = &codeID
	return s.referrals.Update(ctx, r)
}

// OverrideAuthorization is the audited administrative escape hatch.
func (s *Service) OverrideAuthorization(ctx context.Context, id uuid.UUID, actorID, reason string) error {
	if reason == "" {
		return fmt.Errorf("override reason is required")
	}
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
	}
	if r.AuthorizationStatus != AuthRequired && r.AuthorizationStatus != AuthRejected {
		return fmt.Errorf("referral authorization is %s: %w", r.AuthorizationStatus, apperror.ErrInvalidState)
	}
	r.AuthorizationStatus = AuthAuthorized
	if err := s.referrals.Update(ctx, r); err != nil {
		return err
	}
	return s.auditor.RecordAction(ctx, actorID, "referral", id, "authorization_override", reason)
}

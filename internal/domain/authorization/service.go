package authorization

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/pkg/apperror"
)

const defaultTTL = 30 * 24 * time.Hour

// codeAlphabet omits 0/O/1/I so printed codes survive handwriting and
// phone readouts.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PatientDirectory resolves the patient behind a gating decision.
// Satisfied by patient.Service.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Notifier receives authorization.required events for the desk office queue.
type Notifier interface {
	NotifyAuthorizationRequired(ctx context.Context, recipient, patientName, department string)
}

type Service struct {
	codes    Repository
	patients PatientDirectory
	notifier Notifier
}

func NewService(codes Repository, patients PatientDirectory, notifier Notifier) *Service {
	return &Service{codes: codes, patients: patients, notifier: notifier}
}

func generateCode() (string, error) {
	var b strings.Builder
	b.WriteString("AUTH-")
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < 8; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

var validServiceTypes = map[string]bool{
	ServiceConsultation: true, ServicePrescription: true,
	ServiceReferral: true, ServiceProcedure: true,
}

// Issue creates an active code for the patient and service type. The code
// string is generated server-side and returned on the model.
func (s *Service) Issue(ctx context.Context, code *Code) error {
	if code.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !validServiceTypes[code.ServiceType] {
		return fmt.Errorf("invalid service_type: %s", code.ServiceType)
	}
	if code.AmountCap < 0 {
		return fmt.Errorf("amount_cap cannot be negative: %w", apperror.ErrInvalidAmount)
	}
	if _, err := s.patients.GetPatient(ctx, code.PatientID); err != nil {
		return fmt.Errorf("patient %s: %w", code.PatientID, apperror.ErrNotFound)
	}
	generated, err := generateCode()
	if err != nil {
		return err
	}
	code.Code = generated
	code.Status = CodeActive
	code.IssuedAt = time.Now()
	if code.ExpiryDate.IsZero() {
		code.ExpiryDate = code.IssuedAt.Add(defaultTTL)
	}
	return s.codes.Create(ctx, code)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Code, error) {
	return s.codes.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Code, int, error) {
	return s.codes.Search(ctx, params, limit, offset)
}

// Validate checks a presented code against the patient, service type and
// amount without consuming it. A lapsed code is marked expired on the way out.
func (s *Service) Validate(ctx context.Context, codeStr string, patientID uuid.UUID, serviceType string, amount int64) (*Code, error) {
	code, err := s.codes.GetByCode(ctx, codeStr)
	if err != nil {
		return nil, fmt.Errorf("authorization code not recognized: %w", apperror.ErrNotFound)
	}
	if code.Status == CodeActive && !time.Now().Before(code.ExpiryDate) {
		code.Status = CodeExpired
		if err := s.codes.Update(ctx, code); err != nil {
			return nil, err
		}
	}
	if !code.Usable(time.Now()) {
		return nil, fmt.Errorf("authorization code is %s: %w", code.Status, apperror.ErrInvalidState)
	}
	if code.PatientID != patientID {
		return nil, fmt.Errorf("authorization code was issued to a different patient: %w", apperror.ErrInvalidState)
	}
	if code.ServiceType != serviceType {
		return nil, fmt.Errorf("authorization code covers %s, not %s: %w", code.ServiceType, serviceType, apperror.ErrInvalidState)
	}
	if code.AmountCap > 0 && amount > code.AmountCap {
		return nil, fmt.Errorf("amount %d exceeds authorization cap %d: %w", amount, code.AmountCap, apperror.ErrInvalidAmount)
	}
	return code, nil
}

// Consume validates the code under a row lock, marks it used and stamps the
// consuming entity. One code covers exactly one billable event.
func (s *Service) Consume(ctx context.Context, codeStr string, patientID uuid.UUID, serviceType string, amount int64, entityType string, entityID uuid.UUID) (*Code, error) {
	code, err := s.codes.GetByCodeForUpdate(ctx, codeStr)
	if err != nil {
		return nil, fmt.Errorf("authorization code not recognized: %w", apperror.ErrNotFound)
	}
	if !code.Usable(time.Now()) {
		return nil, fmt.Errorf("authorization code is %s: %w", code.Status, apperror.ErrInvalidState)
	}
	if code.PatientID != patientID {
		return nil, fmt.Errorf("authorization code was issued to a different patient: %w", apperror.ErrInvalidState)
	}
	if code.ServiceType != serviceType {
		return nil, fmt.Errorf("authorization code covers %s, not %s: %w", code.ServiceType, serviceType, apperror.ErrInvalidState)
	}
	if code.AmountCap > 0 && amount > code.AmountCap {
		return nil, fmt.Errorf("amount %d exceeds authorization cap %d: %w", amount, code.AmountCap, apperror.ErrInvalidAmount)
	}
	now := time.Now()
	code.Status = CodeUsed
	code.UsedAt = &now
	code.ConsumedByType = entityType
	code.ConsumedByID = &entityID
	if err := s.codes.Update(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// Revoke withdraws an unused code.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("authorization code %s: %w", id, apperror.ErrNotFound)
	}
	if code.Status != CodeActive {
		return fmt.Errorf("authorization code is %s: %w", code.Status, apperror.ErrInvalidState)
	}
	code.Status = CodeRevoked
	return s.codes.Update(ctx, code)
}

func isNHIADepartment(department string) bool {
	return strings.EqualFold(strings.TrimSpace(department), NHIADepartment)
}

// PrescriptionRequiresAuthorization implements prescription.Gate. An enrolled
// patient prescribed outside the NHIA department crosses the coverage
// boundary and needs a desk office code.
func (s *Service) PrescriptionRequiresAuthorization(ctx context.Context, patientID uuid.UUID, clinicianDepartment string) (bool, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return false, fmt.Errorf("patient %s: %w", patientID, apperror.ErrNotFound)
	}
	if !p.IsNHIA() || isNHIADepartment(clinicianDepartment) {
		return false, nil
	}
	s.notifier.NotifyAuthorizationRequired(ctx, "desk-office", p.FirstName+" "+p.LastName, clinicianDepartment)
	return true, nil
}

// ReferralRequiresAuthorization implements referral gating: an enrolled
// patient crossing between the NHIA department and any other department
// needs a code, in either direction.
func (s *Service) ReferralRequiresAuthorization(ctx context.Context, patientID uuid.UUID, fromDepartment, toDepartment string) (bool, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return false, fmt.Errorf("patient %s: %w", patientID, apperror.ErrNotFound)
	}
	if !p.IsNHIA() {
		return false, nil
	}
	if isNHIADepartment(fromDepartment) == isNHIADepartment(toDepartment) {
		return false, nil
	}
	s.notifier.NotifyAuthorizationRequired(ctx, "desk-office", p.FirstName+" "+p.LastName, toDepartment)
	return true, nil
}

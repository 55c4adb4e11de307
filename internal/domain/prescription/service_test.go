package prescription

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/apperror"
)

// -- Mocks --

type mockRepo struct {
	prescriptions map[uuid.UUID]*Prescription
	items         map[uuid.UUID]*Item
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		prescriptions: make(map[uuid.UUID]*Prescription),
		items:         make(map[uuid.UUID]*Item),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	for _, item := range p.Items {
		item.ID = uuid.New()
		item.PrescriptionID = p.ID
		m.items[item.ID] = item
	}
	m.prescriptions[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	p.Items = nil
	for _, item := range m.items {
		if item.PrescriptionID == id {
			p.Items = append(p.Items, item)
		}
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Prescription) error {
	if _, ok := m.prescriptions[p.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.prescriptions[p.ID] = p
	return nil
}

func (m *mockRepo) Search(_ context.Context, _ map[string]string, limit, offset int) ([]*Prescription, int, error) {
	var result []*Prescription
	for _, p := range m.prescriptions {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) GetItem(_ context.Context, id uuid.UUID) (*Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return item, nil
}

func (m *mockRepo) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return m.GetItem(ctx, id)
}

func (m *mockRepo) AddItem(_ context.Context, item *Item) error {
	item.ID = uuid.New()
	m.items[item.ID] = item
	return nil
}

func (m *mockRepo) UpdateItem(_ context.Context, item *Item) error {
	if _, ok := m.items[item.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.items[item.ID] = item
	return nil
}

func (m *mockRepo) ListItems(_ context.Context, prescriptionID uuid.UUID) ([]*Item, error) {
	var result []*Item
	for _, item := range m.items {
		if item.PrescriptionID == prescriptionID {
			result = append(result, item)
		}
	}
	return result, nil
}

type mockGate struct {
	required map[uuid.UUID]bool
}

func (m *mockGate) PrescriptionRequiresAuthorization(_ context.Context, patientID uuid.UUID, _ string) (bool, error) {
	return m.required[patientID], nil
}

type mockAuditor struct {
	actions []string
}

func (m *mockAuditor) RecordAction(_ context.Context, _, _ string, _ uuid.UUID, action, _ string) error {
	m.actions = append(m.actions, action)
	return nil
}

func newTestService() (*Service, *mockRepo, *mockGate, *mockAuditor) {
	repo := newMockRepo()
	gate := &mockGate{required: make(map[uuid.UUID]bool)}
	auditor := &mockAuditor{}
	return NewService(repo, gate, auditor), repo, gate, auditor
}

func newPrescription(patientID uuid.UUID, qty int) *Prescription {
	return &Prescription{
		PatientID:           patientID,
		ClinicianID:         "dr-1",
		ClinicianDepartment: "General Medicine",
		Diagnosis:           "malaria",
		Items: []*Item{
			{MedicationID: uuid.New(), QuantityPrescribed: qty, Dosage: "500mg", Frequency: "tds"},
		},
	}
}

// -- Tests --

func TestCreate_Defaults(t *testing.T) {
	svc, _, _, _ := newTestService()

	p := newPrescription(uuid.New(), 10)
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusPending {
		t.Errorf("expected pending, got %s", p.Status)
	}
	if p.PaymentStatus != PaymentUnpaid {
		t.Errorf("expected unpaid, got %s", p.PaymentStatus)
	}
	if p.AuthorizationStatus != AuthNotRequired {
		t.Errorf("expected not_required, got %s", p.AuthorizationStatus)
	}
	if p.PrescriptionType != TypeOutpatient {
		t.Errorf("expected outpatient default, got %s", p.PrescriptionType)
	}
}

func TestCreate_StampsAuthorizationRequired(t *testing.T) {
	svc, _, gate, _ := newTestService()
	patientID := uuid.New()
	gate.required[patientID] = true

	p := newPrescription(patientID, 10)
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.AuthorizationRequired || p.AuthorizationStatus != AuthRequired {
		t.Errorf("expected authorization required, got %+v", p)
	}
}

func TestCreate_RequiresItems(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.Create(context.Background(), &Prescription{PatientID: uuid.New(), ClinicianID: "dr-1"})
	if err == nil {
		t.Fatal("expected error for missing items")
	}
}

func TestCreate_NonPositiveQuantity(t *testing.T) {
	svc, _, _, _ := newTestService()

	p := newPrescription(uuid.New(), 0)
	err := svc.Create(context.Background(), p)
	if !errors.Is(err, apperror.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	p := newPrescription(uuid.New(), 10)
	svc.Create(ctx, p)

	if err := svc.Approve(ctx, p.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := svc.Approve(ctx, p.ID); !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on double approve, got %v", err)
	}
	if err := svc.Hold(ctx, p.ID); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := svc.Release(ctx, p.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := svc.Cancel(ctx, p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestCancel_BlockedAfterDispensingStarts(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	p := newPrescription(uuid.New(), 10)
	svc.Create(ctx, p)
	repo.prescriptions[p.ID].Status = StatusPartiallyDispensed

	err := svc.Cancel(ctx, p.ID)
	if !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestCanBeDispensed(t *testing.T) {
	tests := []struct {
		name   string
		p      Prescription
		want   bool
		reason string
	}{
		{"ready", Prescription{Status: StatusApproved, PaymentStatus: PaymentPaid, AuthorizationStatus: AuthNotRequired, PrescriptionType: TypeOutpatient}, true, ""},
		{"cancelled", Prescription{Status: StatusCancelled}, false, "prescription is cancelled"},
		{"fully dispensed", Prescription{Status: StatusDispensed}, false, "prescription is fully dispensed"},
		{"authorization pending", Prescription{Status: StatusApproved, AuthorizationStatus: AuthRequired}, false, "authorization is required"},
		{"unpaid outpatient", Prescription{Status: StatusApproved, AuthorizationStatus: AuthNotRequired, PrescriptionType: TypeOutpatient, PaymentStatus: PaymentUnpaid}, false, "payment is outstanding"},
		{"unpaid inpatient", Prescription{Status: StatusApproved, AuthorizationStatus: AuthNotRequired, PrescriptionType: TypeInpatient, PaymentStatus: PaymentUnpaid}, true, ""},
		{"waived outpatient", Prescription{Status: StatusApproved, AuthorizationStatus: AuthNotRequired, PrescriptionType: TypeOutpatient, PaymentStatus: PaymentWaived}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := CanBeDispensed(&tt.p)
			if ok != tt.want {
				t.Errorf("CanBeDispensed() = %v, want %v", ok, tt.want)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestRecordDispense_ClampsAtPrescribed(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	p := newPrescription(uuid.New(), 10)
	svc.Create(ctx, p)
	var itemID uuid.UUID
	for id := range repo.items {
		itemID = id
	}

	item, err := svc.RecordDispense(ctx, itemID, 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.QuantityDispensed != 10 {
		t.Errorf("expected dispensed clamped at 10, got %d", item.QuantityDispensed)
	}
	if !item.IsDispensed || item.DispensedAt == nil {
		t.Error("expected item marked dispensed")
	}

	got, _ := svc.Get(ctx, p.ID)
	if got.Status != StatusDispensed {
		t.Errorf("expected prescription dispensed, got %s", got.Status)
	}
}

func TestRecordDispense_PartialRollsUp(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	p := &Prescription{
		PatientID:   uuid.New(),
		ClinicianID: "dr-1",
		Items: []*Item{
			{MedicationID: uuid.New(), QuantityPrescribed: 5},
			{MedicationID: uuid.New(), QuantityPrescribed: 10},
		},
	}
	svc.Create(ctx, p)

	var firstID uuid.UUID
	for id, item := range repo.items {
		if item.QuantityPrescribed == 5 {
			firstID = id
		}
	}
	if _, err := svc.RecordDispense(ctx, firstID, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := svc.Get(ctx, p.ID)
	if got.Status != StatusPartiallyDispensed {
		t.Errorf("expected partially_dispensed, got %s", got.Status)
	}
}

func TestAuthorize(t *testing.T) {
	svc, _, gate, _ := newTestService()
	ctx := context.Background()
	patientID := uuid.New()
	gate.required[patientID] = true

	p := newPrescription(patientID, 10)
	svc.Create(ctx, p)

	codeID := uuid.New()
	if err := svc.Authorize(ctx, p.ID, codeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.Get(ctx, p.ID)
	if got.AuthorizationStatus != AuthAuthorized {
		t.Errorf("expected authorized, got %s", got.AuthorizationStatus)
	}
	if got.AuthorizationCodeID == nil || *got.AuthorizationCodeID != codeID {
		t.Error("expected code reference stamped")
	}

	// a second authorize is illegal
	if err := svc.Authorize(ctx, p.ID, uuid.New()); !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestOverrideAuthorization_Audited(t *testing.T) {
	svc, _, gate, auditor := newTestService()
	ctx := context.Background()
	patientID := uuid.New()
	gate.required[patientID] = true

	p := newPrescription(patientID, 10)
	svc.Create(ctx, p)

	if err := svc.OverrideAuthorization(ctx, p.ID, "admin-1", ""); err == nil {
		t.Error("expected error for missing reason")
	}
	if err := svc.OverrideAuthorization(ctx, p.ID, "admin-1", "patient emergency"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := svc.Get(ctx, p.ID)
	if got.AuthorizationStatus != AuthAuthorized {
		t.Errorf("expected authorized, got %s", got.AuthorizationStatus)
	}
	if len(auditor.actions) != 1 || auditor.actions[0] != "authorization_override" {
		t.Errorf("expected override audit row, got %v", auditor.actions)
	}
}

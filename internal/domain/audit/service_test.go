package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/middleware"
)

type mockRepo struct {
	logs []*Log
}

func (m *mockRepo) Create(_ context.Context, l *Log) error {
	l.ID = uuid.New()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Log, error) {
	for _, l := range m.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, context.Canceled
}

func (m *mockRepo) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]*Log, error) {
	var out []*Log
	for _, l := range m.logs {
		if l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockRepo) Search(_ context.Context, _ map[string]string, _, _ int) ([]*Log, int, error) {
	return m.logs, len(m.logs), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := &mockRepo{}
	return NewService(repo, zerolog.Nop()), repo
}

func TestHashState(t *testing.T) {
	type state struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	a := HashState(state{Status: "pending", Amount: 5000})
	b := HashState(state{Status: "pending", Amount: 5000})
	c := HashState(state{Status: "paid", Amount: 5000})

	if a == "" || len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %q", a)
	}
	if a != b {
		t.Error("equal states must hash equal")
	}
	if a == c {
		t.Error("different states must hash different")
	}
	if HashState(nil) != "" {
		t.Error("nil state must hash to empty string")
	}
}

func TestRecordAction(t *testing.T) {
	svc, repo := newTestService()
	entityID := uuid.New()

	if err := svc.RecordAction(context.Background(), "pharm-1", "prescription", entityID, "waive_payment", "director approval"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(repo.logs))
	}
	l := repo.logs[0]
	if l.Outcome != OutcomeSuccess || l.ActorID != "pharm-1" || l.Action != "waive_payment" {
		t.Errorf("unexpected row: %+v", l)
	}
	if l.RecordedAt.IsZero() || time.Since(l.RecordedAt) > time.Minute {
		t.Errorf("recorded_at not stamped: %v", l.RecordedAt)
	}
}

func TestRecordAction_RequiresEntityTypeAndAction(t *testing.T) {
	svc, repo := newTestService()
	if err := svc.RecordAction(context.Background(), "pharm-1", "", uuid.New(), "dispense", ""); err == nil {
		t.Error("expected error for missing entity_type")
	}
	if err := svc.RecordAction(context.Background(), "pharm-1", "cart", uuid.New(), "", ""); err == nil {
		t.Error("expected error for missing action")
	}
	if len(repo.logs) != 0 {
		t.Errorf("expected no rows, got %d", len(repo.logs))
	}
}

func TestRecordAction_DefaultsSystemActor(t *testing.T) {
	svc, repo := newTestService()
	if err := svc.RecordAction(context.Background(), "", "cart", uuid.New(), "auto_heal_paid", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.logs[0].ActorID != "system" {
		t.Errorf("expected system actor, got %q", repo.logs[0].ActorID)
	}
}

func TestRecordChange_Hashes(t *testing.T) {
	svc, repo := newTestService()
	entityID := uuid.New()
	before := map[string]string{"status": "pending"}
	after := map[string]string{"status": "approved"}

	if err := svc.RecordChange(context.Background(), "dr-1", "prescription", entityID, "approve", before, after, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l := repo.logs[0]
	if l.BeforeHash == "" || l.AfterHash == "" || l.BeforeHash == l.AfterHash {
		t.Errorf("expected distinct state hashes, got %q / %q", l.BeforeHash, l.AfterHash)
	}
	if l.BeforeHash != HashState(before) {
		t.Error("before hash does not match the state")
	}
}

func TestRecordFailure(t *testing.T) {
	svc, repo := newTestService()
	if err := svc.RecordFailure(context.Background(), "pharm-1", "cart", uuid.New(), "generate_invoice", "insufficient stock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.logs[0].Outcome != OutcomeFailure {
		t.Errorf("expected failure outcome, got %q", repo.logs[0].Outcome)
	}
}

func TestRecordAccess(t *testing.T) {
	svc, repo := newTestService()
	patientID := uuid.New()

	err := svc.RecordAccess(middleware.AuditEntry{
		UserID:       "dr-1",
		ResourceType: "patients",
		PatientID:    patientID.String(),
		Action:       "read",
		Method:       "GET",
		Path:         "/api/v1/patients/" + patientID.String(),
		IPAddress:    "10.0.0.7",
		RequestID:    "req-1",
		StatusCode:   200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l := repo.logs[0]
	if l.EntityType != "patients" || l.EntityID != patientID || l.Outcome != OutcomeSuccess {
		t.Errorf("unexpected row: %+v", l)
	}
	if l.Detail != "GET /api/v1/patients/"+patientID.String() {
		t.Errorf("unexpected detail: %q", l.Detail)
	}

	err = svc.RecordAccess(middleware.AuditEntry{
		UserID:       "dr-1",
		ResourceType: "carts",
		Action:       "create",
		Method:       "POST",
		Path:         "/api/v1/carts",
		StatusCode:   403,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.logs[1].Outcome != OutcomeFailure {
		t.Errorf("expected denied access recorded as failure, got %q", repo.logs[1].Outcome)
	}
}

func TestTrail(t *testing.T) {
	svc, _ := newTestService()
	entityID := uuid.New()

	svc.RecordAction(context.Background(), "dr-1", "prescription", entityID, "approve", "")
	svc.RecordAction(context.Background(), "pharm-1", "prescription", entityID, "dispense", "")
	svc.RecordAction(context.Background(), "pharm-1", "cart", uuid.New(), "open", "")

	trail, err := svc.Trail(context.Background(), "prescription", entityID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(trail))
	}
	if trail[0].Action != "approve" || trail[1].Action != "dispense" {
		t.Errorf("unexpected trail order: %v, %v", trail[0].Action, trail[1].Action)
	}
}

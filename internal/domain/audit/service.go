package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/middleware"
)

type Service struct {
	logs   Repository
	logger zerolog.Logger
}

func NewService(logs Repository, logger zerolog.Logger) *Service {
	return &Service{logs: logs, logger: logger}
}

// HashState returns the SHA-256 hex digest of the JSON form of v. The
// empty string stands for "no state", not the hash of nil.
func HashState(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RecordAction writes a successful trail row without state hashes. This is
// the contract the domain services depend on.
func (s *Service) RecordAction(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action, detail string) error {
	return s.record(ctx, &Log{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Detail:     detail,
		Outcome:    OutcomeSuccess,
	})
}

// RecordChange writes a trail row carrying before and after state hashes.
func (s *Service) RecordChange(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action string, before, after interface{}, detail string) error {
	return s.record(ctx, &Log{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		BeforeHash: HashState(before),
		AfterHash:  HashState(after),
		Detail:     detail,
		Outcome:    OutcomeSuccess,
	})
}

// RecordFailure writes a failure-outcome row. Failed attempts at guarded
// operations are part of the trail, not just the successes.
func (s *Service) RecordFailure(ctx context.Context, actorID, entityType string, entityID uuid.UUID, action, detail string) error {
	return s.record(ctx, &Log{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Detail:     detail,
		Outcome:    OutcomeFailure,
	})
}

func (s *Service) record(ctx context.Context, l *Log) error {
	if l.EntityType == "" || l.Action == "" {
		return fmt.Errorf("entity_type and action are required")
	}
	if l.ActorID == "" {
		l.ActorID = "system"
	}
	l.RecordedAt = time.Now().UTC()
	if err := s.logs.Create(ctx, l); err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", l.EntityType).
			Str("action", l.Action).
			Msg("failed to persist audit log")
		return err
	}
	return nil
}

// RecordAccess adapts middleware access entries into trail rows, satisfying
// middleware.AuditRecorder. Access rows carry the resource collection as
// the entity type and a nil entity id unless the path names a patient.
func (s *Service) RecordAccess(entry middleware.AuditEntry) error {
	l := &Log{
		ActorID:    entry.UserID,
		EntityType: entry.ResourceType,
		Action:     entry.Action,
		Detail:     entry.Method + " " + entry.Path,
		IPAddress:  entry.IPAddress,
		RequestID:  entry.RequestID,
		Outcome:    OutcomeSuccess,
	}
	if entry.StatusCode >= http.StatusBadRequest {
		l.Outcome = OutcomeFailure
	}
	if id, err := uuid.Parse(entry.PatientID); err == nil {
		l.EntityID = id
	}
	return s.record(context.Background(), l)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Log, error) {
	return s.logs.GetByID(ctx, id)
}

// Trail returns the full history for one entity, oldest first.
func (s *Service) Trail(ctx context.Context, entityType string, entityID uuid.UUID) ([]*Log, error) {
	return s.logs.ListByEntity(ctx, entityType, entityID)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Log, int, error) {
	return s.logs.Search(ctx, params, limit, offset)
}

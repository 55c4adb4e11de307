package audit

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Log is one immutable audit trail row. State hashes are SHA-256 over the
// JSON form of the entity before and after the action, so a reviewer can
// detect after-the-fact tampering without storing the state itself.
type Log struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    string     `json:"actor_id"`
	ActorName  string     `json:"actor_name,omitempty"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Action     string     `json:"action"`
	BeforeHash string     `json:"before_hash,omitempty"`
	AfterHash  string     `json:"after_hash,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	Outcome    string     `json:"outcome"`
	IPAddress  string     `json:"ip_address,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

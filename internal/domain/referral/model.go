package referral

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	TypeDepartment = "department"
	TypeSpecialty  = "specialty"
	TypeUnit       = "unit"
	TypeDoctor     = "doctor"
)

const (
	AuthNotRequired = "not_required"
	AuthRequired    = "required"
	AuthAuthorized  = "authorized"
	AuthRejected    = "rejected"
)

// Referral routes a patient toward a department, specialty, unit or a
// named clinician. The owning department is always resolved; specialty and
// unit targets are mapped onto it by the router table.
type Referral struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	ReferringClinicianID  string     `json:"referring_clinician_id"`
	ReferringDepartment   string     `json:"referring_department"`
	ReferralType          string     `json:"referral_type"`
	TargetDepartment      string     `json:"target_department"`
	TargetSpecialty       string     `json:"target_specialty,omitempty"`
	TargetUnit            string     `json:"target_unit,omitempty"`
	AssignedClinicianID   string     `json:"assigned_clinician_id,omitempty"`
	Reason                string     `json:"reason"`
	Status                string     `json:"status"`
	RejectionReason       string     `json:"rejection_reason,omitempty"`
	RequiresAuthorization bool       `json:"requires_authorization"`
	AuthorizationStatus   string     `json:"authorization_status"`
	AuthorizationCodeID   *uuid.UUID `json:"authorization_code_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

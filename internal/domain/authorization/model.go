package authorization

import (
	"time"

	"github.com/google/uuid"
)

const (
	CodeActive  = "active"
	CodeUsed    = "used"
	CodeExpired = "expired"
	CodeRevoked = "revoked"
)

const (
	ServiceConsultation = "consultation"
	ServicePrescription = "prescription"
	ServiceReferral     = "referral"
	ServiceProcedure    = "procedure"
)

// NHIADepartment is the clinical department whose services are covered
// without a desk-office code. Crossing out of it is what triggers gating.
const NHIADepartment = "NHIA"

// Code is a desk-office-issued token that lifts the insured/non-insured
// boundary block for exactly one billable event. AmountCap is in kobo;
// zero means uncapped.
type Code struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	Code           string     `json:"code"`
	ServiceType    string     `json:"service_type"`
	AmountCap      int64      `json:"amount_cap"`
	Status         string     `json:"status"`
	IssuedBy       string     `json:"issued_by"`
	IssuedAt       time.Time  `json:"issued_at"`
	ExpiryDate     time.Time  `json:"expiry_date"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	ConsumedByType string     `json:"consumed_by_type,omitempty"`
	ConsumedByID   *uuid.UUID `json:"consumed_by_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Usable reports whether the code can still satisfy a gate at the given time.
func (c *Code) Usable(now time.Time) bool {
	return c.Status == CodeActive && now.Before(c.ExpiryDate)
}

package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Prescription statuses.
const (
	StatusPending            = "pending"
	StatusApproved           = "approved"
	StatusPartiallyDispensed = "partially_dispensed"
	StatusDispensed          = "dispensed"
	StatusCancelled          = "cancelled"
	StatusOnHold             = "on_hold"
)

// Payment statuses.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
	PaymentWaived = "waived"
)

// Authorization statuses.
const (
	AuthNotRequired = "not_required"
	AuthRequired    = "required"
	AuthAuthorized  = "authorized"
	AuthRejected    = "rejected"
)

// Prescription types.
const (
	TypeOutpatient = "outpatient"
	TypeInpatient  = "inpatient"
)

type Prescription struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	ClinicianID           string     `json:"clinician_id"`
	ClinicianDepartment   string     `json:"clinician_department"`
	Date                  time.Time  `json:"date"`
	Diagnosis             string     `json:"diagnosis"`
	PrescriptionType      string     `json:"prescription_type"`
	Status                string     `json:"status"`
	PaymentStatus         string     `json:"payment_status"`
	AuthorizationRequired bool       `json:"authorization_required"`
	AuthorizationStatus   string     `json:"authorization_status"`
	AuthorizationCodeID   *uuid.UUID `json:"authorization_code_id,omitempty"`
	Items                 []*Item    `json:"items,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Item is one prescribed medication line. QuantityDispensed never exceeds
// QuantityPrescribed; over-dispensing at the counter is logged but not
// reflected here.
type Item struct {
	ID                 uuid.UUID  `json:"id"`
	PrescriptionID     uuid.UUID  `json:"prescription_id"`
	MedicationID       uuid.UUID  `json:"medication_id"`
	QuantityPrescribed int        `json:"quantity_prescribed"`
	QuantityDispensed  int        `json:"quantity_dispensed"`
	Dosage             string     `json:"dosage"`
	Frequency          string     `json:"frequency"`
	Duration           string     `json:"duration"`
	Instructions       string     `json:"instructions"`
	IsDispensed        bool       `json:"is_dispensed"`
	DispensedAt        *time.Time `json:"dispensed_at,omitempty"`
}

// Remaining is the prescribed quantity still owed to the patient.
func (i *Item) Remaining() int {
	r := i.QuantityPrescribed - i.QuantityDispensed
	if r < 0 {
		return 0
	}
	return r
}

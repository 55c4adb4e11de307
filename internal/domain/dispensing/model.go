package dispensing

import (
	"time"

	"github.com/google/uuid"
)

// Log is the append-only record of what actually left the shelf. One row
// per (cart item, batch) pair touched by a dispensing pass.
type Log struct {
	ID                 uuid.UUID `json:"id"`
	PrescriptionItemID uuid.UUID `json:"prescription_item_id"`
	CartItemID         uuid.UUID `json:"cart_item_id"`
	MedicationID       uuid.UUID `json:"medication_id"`
	DispensaryID       uuid.UUID `json:"dispensary_id"`
	BatchNumber        string    `json:"batch_number"`
	Quantity           int       `json:"quantity"`
	UnitPrice          int64     `json:"unit_price"`
	Total              int64     `json:"total"`
	DispensedBy        string    `json:"dispensed_by"`
	DispensedAt        time.Time `json:"dispensed_at"`
}

// Selection is one entry of a dispensing submission.
type Selection struct {
	CartItemID uuid.UUID `json:"cart_item_id"`
	Quantity   int       `json:"quantity"`
}

// Result reports what a dispensing pass committed. Warnings carry the
// entries that were skipped rather than failed.
type Result struct {
	CartID   uuid.UUID `json:"cart_id"`
	Logs     []*Log    `json:"logs"`
	Warnings []string  `json:"warnings,omitempty"`
}

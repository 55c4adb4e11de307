package cart

import (
	"time"

	"github.com/google/uuid"
)

const (
	CartActive             = "active"
	CartInvoiced           = "invoiced"
	CartPaid               = "paid"
	CartPartiallyDispensed = "partially_dispensed"
	CartCompleted          = "completed"
	CartCancelled          = "cancelled"
)

// Cart is a pharmacist's working set against one prescription. At most one
// active cart exists per prescription; transitions are monotone except
// cancellation.
type Cart struct {
	ID             uuid.UUID   `json:"id"`
	PrescriptionID uuid.UUID   `json:"prescription_id"`
	PharmacistID   string      `json:"pharmacist_id"`
	DispensaryID   *uuid.UUID  `json:"dispensary_id,omitempty"`
	Status         string      `json:"status"`
	InvoiceID      *uuid.UUID  `json:"invoice_id,omitempty"`
	Items          []*CartItem `json:"items,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      *time.Time  `json:"updated_at,omitempty"`
}

// CartItem carries the pharmacist-requested quantity, which may exceed the
// prescribed remainder. Price and stock snapshots are taken at add time and
// refreshed on substitution; kobo for money.
type CartItem struct {
	ID                     uuid.UUID  `json:"id"`
	CartID                 uuid.UUID  `json:"cart_id"`
	PrescriptionItemID     uuid.UUID  `json:"prescription_item_id"`
	MedicationID           uuid.UUID  `json:"medication_id"`
	Quantity               int        `json:"quantity"`
	QuantityDispensed      int        `json:"quantity_dispensed"`
	UnitPriceSnapshot      int64      `json:"unit_price_snapshot"`
	AvailableStockSnapshot int        `json:"available_stock_snapshot"`
	SubstituteMedicationID *uuid.UUID `json:"substitute_medication_id,omitempty"`
	SubstituteReason       string     `json:"substitute_reason,omitempty"`
	SubstitutedBy          string     `json:"substituted_by,omitempty"`
	SubstitutedAt          *time.Time `json:"substituted_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// EffectiveMedicationID is the medication used for pricing and stock. The
// prescription item's original drug is never rewritten by substitution.
func (i *CartItem) EffectiveMedicationID() uuid.UUID {
	if i.SubstituteMedicationID != nil {
		return *i.SubstituteMedicationID
	}
	return i.MedicationID
}

// RemainingInCart is the quantity still to dispense within this cart.
func (i *CartItem) RemainingInCart() int {
	if r := i.Quantity - i.QuantityDispensed; r > 0 {
		return r
	}
	return 0
}

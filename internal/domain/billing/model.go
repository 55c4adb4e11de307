package billing

import (
	"time"

	"github.com/google/uuid"
)

const (
	InvoiceDraft         = "draft"
	InvoicePending       = "pending"
	InvoicePaid          = "paid"
	InvoicePartiallyPaid = "partially_paid"
	InvoiceCancelled     = "cancelled"
	InvoiceRefunded      = "refunded"
)

const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodTransfer  = "transfer"
	MethodWallet    = "wallet"
	MethodInsurance = "insurance"
	MethodNHIA      = "nhia"
)

const (
	SourceDirect        = "direct"
	SourcePatientWallet = "patient_wallet"
	SourceBillingOffice = "billing_office"
)

// Invoice is a pharmacy bill. All amounts are in kobo. For insured
// patients TotalAmount is the patient portion only; NHIACoverage carries
// the insurer portion for reconciliation and is never collected here.
type Invoice struct {
	ID             uuid.UUID      `json:"id"`
	PatientID      uuid.UUID      `json:"patient_id"`
	PrescriptionID *uuid.UUID     `json:"prescription_id,omitempty"`
	Subtotal       int64          `json:"subtotal"`
	Tax            int64          `json:"tax"`
	Discount       int64          `json:"discount"`
	TotalAmount    int64          `json:"total_amount"`
	NHIACoverage   int64          `json:"nhia_coverage"`
	AmountPaid     int64          `json:"amount_paid"`
	Status         string         `json:"status"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Items          []*InvoiceItem `json:"items,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

// Outstanding is the amount still owed by the patient.
func (i *Invoice) Outstanding() int64 {
	if d := i.TotalAmount - i.AmountPaid; d > 0 {
		return d
	}
	return 0
}

type InvoiceItem struct {
	ID           uuid.UUID `json:"id"`
	InvoiceID    uuid.UUID `json:"invoice_id"`
	MedicationID uuid.UUID `json:"medication_id"`
	Description  string    `json:"description"`
	Quantity     int       `json:"quantity"`
	UnitPrice    int64     `json:"unit_price"`
	Total        int64     `json:"total"`
}

// Payment rows are append-only. Refunds are recorded as new payments with
// negative amounts.
type Payment struct {
	ID            uuid.UUID `json:"id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	Source        string    `json:"source"`
	TransactionID string    `json:"transaction_id,omitempty"`
	RecordedBy    string    `json:"recorded_by"`
	PaidAt        time.Time `json:"paid_at"`
	CreatedAt     time.Time `json:"created_at"`
}

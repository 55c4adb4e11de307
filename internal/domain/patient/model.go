package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient types drive the pricing rule at checkout.
const (
	TypeRegular   = "regular"
	TypeNHIA      = "nhia"
	TypePrivate   = "private"
	TypeInsurance = "insurance"
)

type Patient struct {
	ID          uuid.UUID    `json:"id"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Gender      string       `json:"gender"`
	DateOfBirth *time.Time   `json:"date_of_birth,omitempty"`
	Phone       string       `json:"phone"`
	Email       string       `json:"email"`
	Address     string       `json:"address"`
	PatientType string       `json:"patient_type"`
	NHIAProfile *NHIAProfile `json:"nhia_profile,omitempty"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsNHIA reports whether NHIA split pricing applies. The patient must be
// typed nhia AND carry an active enrollment record; a stale profile on a
// retyped patient does not qualify.
func (p *Patient) IsNHIA() bool {
	return p.PatientType == TypeNHIA && p.NHIAProfile != nil && p.NHIAProfile.IsActive
}

// NHIAProfile is the optional 1:1 enrollment record for NHIA patients.
type NHIAProfile struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	NHIARegNumber string    `json:"nhia_reg_number"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Wallet holds a running balance in kobo. The balance may go negative;
// accrued patient debt is represented directly on the ledger.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wallet transaction kinds.
const (
	TxCredit          = "credit"
	TxDebit           = "debit"
	TxDeposit         = "deposit"
	TxWithdrawal      = "withdrawal"
	TxPayment         = "payment"
	TxRefund          = "refund"
	TxTransferIn      = "transfer_in"
	TxTransferOut     = "transfer_out"
	TxAdjustment      = "adjustment"
	TxPharmacyPayment = "pharmacy_payment"
)

// WalletTransaction is one signed ledger entry. BalanceAfter snapshots the
// wallet balance at commit so the ledger can be audited without replay.
type WalletTransaction struct {
	ID                   uuid.UUID  `json:"id"`
	WalletID             uuid.UUID  `json:"wallet_id"`
	Amount               int64      `json:"amount"`
	Kind                 string     `json:"kind"`
	BalanceAfter         int64      `json:"balance_after"`
	ReferenceType        string     `json:"reference_type,omitempty"`
	ReferenceID          *uuid.UUID `json:"reference_id,omitempty"`
	RelatedTransactionID *uuid.UUID `json:"related_transaction_id,omitempty"`
	Description          string     `json:"description,omitempty"`
	PerformedBy          string     `json:"performed_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/pkg/apperror"
)

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// WalletCharger debits a patient wallet for an invoice. Satisfied by
// patient.Service. The wallet may go negative; accrued debt is carried on
// the ledger.
type WalletCharger interface {
	ChargeForInvoice(ctx context.Context, patientID uuid.UUID, amount int64, invoiceID uuid.UUID, performedBy string) (*patient.WalletTransaction, error)
}

// PrescriptionMarker flips the prescription payment flag once its invoice
// is settled. Satisfied by prescription.Service.
type PrescriptionMarker interface {
	MarkPaid(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	invoices      Repository
	payments      PaymentRepository
	wallets       WalletCharger
	prescriptions PrescriptionMarker
	tx            TxRunner
}

func NewService(invoices Repository, payments PaymentRepository, wallets WalletCharger, prescriptions PrescriptionMarker, tx TxRunner) *Service {
	return &Service{invoices: invoices, payments: payments, wallets: wallets, prescriptions: prescriptions, tx: tx}
}

var validMethods = map[string]bool{
	MethodCash: true, MethodCard: true, MethodTransfer: true,
	MethodWallet: true, MethodInsurance: true, MethodNHIA: true,
}

var validSources = map[string]bool{
	SourceDirect: true, SourcePatientWallet: true, SourceBillingOffice: true,
}

// CreateInvoice persists the invoice with recomputed totals. When the
// caller supplies NHIACoverage the patient owes only the uncovered part.
func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if len(inv.Items) == 0 {
		return fmt.Errorf("invoice requires at least one item")
	}
	for _, item := range inv.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return fmt.Errorf("invalid invoice item amounts: %w", apperror.ErrInvalidAmount)
		}
		item.Total = int64(item.Quantity) * item.UnitPrice
	}
	recomputeTotals(inv)
	if inv.Status == "" {
		inv.Status = InvoicePending
	}
	return s.invoices.CreateInvoice(ctx, inv)
}

// recomputeTotals derives subtotal and total from the item lines. The
// insurer split is kept proportional: coverage tracks 90% of the current
// subtotal whenever the invoice carries coverage at all.
func recomputeTotals(inv *Invoice) {
	var subtotal int64
	for _, item := range inv.Items {
		subtotal += item.Total
	}
	inv.Subtotal = subtotal
	if inv.NHIACoverage > 0 {
		inv.NHIACoverage = subtotal * 90 / 100
	}
	inv.TotalAmount = subtotal - inv.NHIACoverage + inv.Tax - inv.Discount
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetInvoice(ctx, id)
}

func (s *Service) SearchInvoices(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.SearchInvoices(ctx, params, limit, offset)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	return s.payments.ListByInvoice(ctx, invoiceID)
}

func (s *Service) mutableInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetInvoiceForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", id, apperror.ErrNotFound)
	}
	if inv.Status != InvoiceDraft && inv.Status != InvoicePending {
		return nil, fmt.Errorf("invoice is %s, items are frozen: %w", inv.Status, apperror.ErrInvalidState)
	}
	return inv, nil
}

func (s *Service) AddInvoiceItem(ctx context.Context, invoiceID uuid.UUID, item *InvoiceItem) error {
	if item.Quantity <= 0 || item.UnitPrice < 0 {
		return fmt.Errorf("invalid invoice item amounts: %w", apperror.ErrInvalidAmount)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		inv, err := s.mutableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		item.InvoiceID = invoiceID
		item.Total = int64(item.Quantity) * item.UnitPrice
		if err := s.invoices.AddItem(ctx, item); err != nil {
			return err
		}
		inv.Items = append(inv.Items, item)
		recomputeTotals(inv)
		return s.invoices.UpdateInvoice(ctx, inv)
	})
}

// RemoveInvoiceItem drops the line and recomputes. An invoice emptied to
// zero with no payments is deleted outright; deleted reports that outcome.
func (s *Service) RemoveInvoiceItem(ctx context.Context, invoiceID, itemID uuid.UUID) (deleted bool, err error) {
	err = s.tx(ctx, func(ctx context.Context) error {
		inv, err := s.mutableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.invoices.RemoveItem(ctx, itemID); err != nil {
			return err
		}
		kept := inv.Items[:0]
		for _, item := range inv.Items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		inv.Items = kept
		recomputeTotals(inv)
		if inv.TotalAmount == 0 && inv.AmountPaid == 0 {
			payments, err := s.payments.ListByInvoice(ctx, invoiceID)
			if err != nil {
				return err
			}
			if len(payments) == 0 {
				deleted = true
				return s.invoices.DeleteInvoice(ctx, invoiceID)
			}
		}
		return s.invoices.UpdateInvoice(ctx, inv)
	})
	return deleted, err
}

// RecordPayment appends a payment and settles the invoice state. When a
// transaction id is supplied the call is idempotent on (invoice,
// transaction_id); a duplicate submission returns the original payment.
func (s *Service) RecordPayment(ctx context.Context, p *Payment) (*Payment, error) {
	if p.Amount == 0 {
		return nil, fmt.Errorf("payment amount cannot be zero: %w", apperror.ErrInvalidAmount)
	}
	if !validMethods[p.Method] {
		return nil, fmt.Errorf("invalid payment method: %s", p.Method)
	}
	if p.Source == "" {
		p.Source = SourceDirect
	}
	if !validSources[p.Source] {
		return nil, fmt.Errorf("invalid payment source: %s", p.Source)
	}
	var recorded *Payment
	err := s.tx(ctx, func(ctx context.Context) error {
		if p.TransactionID != "" {
			existing, err := s.payments.GetByTransactionID(ctx, p.InvoiceID, p.TransactionID)
			if err != nil {
				return err
			}
			if existing != nil {
				recorded = existing
				return nil
			}
		}
		inv, err := s.invoices.GetInvoiceForUpdate(ctx, p.InvoiceID)
		if err != nil {
			return fmt.Errorf("invoice %s: %w", p.InvoiceID, apperror.ErrNotFound)
		}
		if inv.Status == InvoiceCancelled {
			return fmt.Errorf("invoice is cancelled: %w", apperror.ErrInvalidState)
		}
		if p.PaidAt.IsZero() {
			p.PaidAt = time.Now()
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		inv.AmountPaid += p.Amount
		if err := s.settle(ctx, inv); err != nil {
			return err
		}
		recorded = p
		return nil
	})
	return recorded, err
}

// settle recomputes invoice status from the paid amount and propagates a
// full settlement to the prescription.
func (s *Service) settle(ctx context.Context, inv *Invoice) error {
	wasPaid := inv.Status == InvoicePaid
	switch {
	case inv.TotalAmount > 0 && inv.AmountPaid >= inv.TotalAmount:
		inv.Status = InvoicePaid
	case inv.AmountPaid > 0:
		inv.Status = InvoicePartiallyPaid
	default:
		inv.Status = InvoicePending
	}
	if err := s.invoices.UpdateInvoice(ctx, inv); err != nil {
		return err
	}
	if inv.Status == InvoicePaid && !wasPaid && inv.PrescriptionID != nil {
		return s.prescriptions.MarkPaid(ctx, *inv.PrescriptionID)
	}
	return nil
}

// PayFromWallet settles the outstanding balance from the patient wallet in
// one transaction. The resulting wallet ledger entry doubles as the
// payment's transaction id.
func (s *Service) PayFromWallet(ctx context.Context, invoiceID uuid.UUID, recordedBy string) (*Payment, error) {
	var recorded *Payment
	err := s.tx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("invoice %s: %w", invoiceID, apperror.ErrNotFound)
		}
		if inv.Status == InvoiceCancelled {
			return fmt.Errorf("invoice is cancelled: %w", apperror.ErrInvalidState)
		}
		amount := inv.Outstanding()
		if amount <= 0 {
			return fmt.Errorf("invoice has no outstanding balance: %w", apperror.ErrInvalidState)
		}
		walletTx, err := s.wallets.ChargeForInvoice(ctx, inv.PatientID, amount, inv.ID, recordedBy)
		if err != nil {
			return err
		}
		p := &Payment{
			InvoiceID:     inv.ID,
			Amount:        amount,
			Method:        MethodWallet,
			Source:        SourcePatientWallet,
			TransactionID: walletTx.ID.String(),
			RecordedBy:    recordedBy,
			PaidAt:        time.Now(),
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		inv.AmountPaid += amount
		if err := s.settle(ctx, inv); err != nil {
			return err
		}
		recorded = p
		return nil
	})
	return recorded, err
}

// CancelUnpaid cancels an invoice nothing has been paid against. Paid and
// partially paid invoices are left for desk office action.
func (s *Service) CancelUnpaid(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("invoice %s: %w", id, apperror.ErrNotFound)
		}
		if inv.AmountPaid != 0 || (inv.Status != InvoiceDraft && inv.Status != InvoicePending) {
			return fmt.Errorf("invoice is %s with %d paid: %w", inv.Status, inv.AmountPaid, apperror.ErrInvalidState)
		}
		inv.Status = InvoiceCancelled
		return s.invoices.UpdateInvoice(ctx, inv)
	})
}

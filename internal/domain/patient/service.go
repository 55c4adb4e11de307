package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/apperror"
)

// TxRunner executes fn atomically. Production wiring passes db.WithTx bound
// to the pool; tests pass a pass-through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	patients Repository
	wallets  WalletRepository
	tx       TxRunner
}

func NewService(patients Repository, wallets WalletRepository, tx TxRunner) *Service {
	return &Service{patients: patients, wallets: wallets, tx: tx}
}

var validPatientTypes = map[string]bool{
	TypeRegular: true, TypeNHIA: true, TypePrivate: true, TypeInsurance: true,
}

var validTxKinds = map[string]bool{
	TxCredit: true, TxDebit: true, TxDeposit: true, TxWithdrawal: true,
	TxPayment: true, TxRefund: true, TxTransferIn: true, TxTransferOut: true,
	TxAdjustment: true, TxPharmacyPayment: true,
}

// CreatePatient registers a patient and opens their wallet in one
// transaction. Every patient has exactly one wallet from day one.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.PatientType == "" {
		p.PatientType = TypeRegular
	}
	if !validPatientTypes[p.PatientType] {
		return fmt.Errorf("invalid patient_type: %s", p.PatientType)
	}
	p.IsActive = true
	return s.tx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		return s.wallets.Create(ctx, &Wallet{PatientID: p.ID})
	})
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !validPatientTypes[p.PatientType] {
		return fmt.Errorf("invalid patient_type: %s", p.PatientType)
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeactivatePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Deactivate(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

// SetNHIAProfile creates or updates the enrollment record. Setting a profile
// does not flip the patient type; the caller decides that separately.
func (s *Service) SetNHIAProfile(ctx context.Context, patientID uuid.UUID, regNumber string, active bool) (*NHIAProfile, error) {
	if regNumber == "" {
		return nil, fmt.Errorf("nhia_reg_number is required")
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, fmt.Errorf("patient %s: %w", patientID, apperror.ErrNotFound)
	}
	profile := &NHIAProfile{PatientID: patientID, NHIARegNumber: regNumber, IsActive: active}
	if err := s.patients.UpsertNHIAProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// -- Wallet operations --

func (s *Service) GetWallet(ctx context.Context, patientID uuid.UUID) (*Wallet, error) {
	w, err := s.wallets.GetByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("wallet for patient %s: %w", patientID, apperror.ErrNotFound)
	}
	return w, nil
}

func (s *Service) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*WalletTransaction, int, error) {
	return s.wallets.ListTransactions(ctx, walletID, limit, offset)
}

// Deposit credits the wallet. Amount is in kobo and must be positive.
func (s *Service) Deposit(ctx context.Context, patientID uuid.UUID, amount int64, performedBy string) (*WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %w", apperror.ErrInvalidAmount)
	}
	return s.applyTransaction(ctx, patientID, amount, TxDeposit, "", nil, "wallet deposit", performedBy, false)
}

// Withdraw debits the wallet. Unlike pharmacy payments a withdrawal may not
// overdraw the balance.
func (s *Service) Withdraw(ctx context.Context, patientID uuid.UUID, amount int64, performedBy string) (*WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive: %w", apperror.ErrInvalidAmount)
	}
	return s.applyTransaction(ctx, patientID, -amount, TxWithdrawal, "", nil, "wallet withdrawal", performedBy, true)
}

// ChargeForInvoice debits the wallet for a pharmacy invoice payment. The
// balance may go negative; the debt stays on the ledger.
func (s *Service) ChargeForInvoice(ctx context.Context, patientID uuid.UUID, amount int64, invoiceID uuid.UUID, performedBy string) (*WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("charge amount must be positive: %w", apperror.ErrInvalidAmount)
	}
	return s.applyTransaction(ctx, patientID, -amount, TxPharmacyPayment, "invoice", &invoiceID, "pharmacy invoice payment", performedBy, false)
}

// RefundForInvoice credits the wallet back for a refunded invoice.
func (s *Service) RefundForInvoice(ctx context.Context, patientID uuid.UUID, amount int64, invoiceID uuid.UUID, performedBy string) (*WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("refund amount must be positive: %w", apperror.ErrInvalidAmount)
	}
	return s.applyTransaction(ctx, patientID, amount, TxRefund, "invoice", &invoiceID, "pharmacy invoice refund", performedBy, false)
}

func (s *Service) applyTransaction(ctx context.Context, patientID uuid.UUID, delta int64, kind, refType string, refID *uuid.UUID, description, performedBy string, enforceBalance bool) (*WalletTransaction, error) {
	if !validTxKinds[kind] {
		return nil, fmt.Errorf("invalid transaction kind: %s", kind)
	}
	wallet, err := s.wallets.GetByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("wallet for patient %s: %w", patientID, apperror.ErrNotFound)
	}
	if enforceBalance && wallet.Balance+delta < 0 {
		return nil, fmt.Errorf("amount exceeds wallet balance: %w", apperror.ErrInvalidAmount)
	}

	var txRow *WalletTransaction
	err = s.tx(ctx, func(ctx context.Context) error {
		balance, err := s.wallets.AdjustBalance(ctx, wallet.ID, delta)
		if err != nil {
			return err
		}
		if enforceBalance && balance < 0 {
			return fmt.Errorf("amount exceeds wallet balance: %w", apperror.ErrInvalidAmount)
		}
		txRow = &WalletTransaction{
			WalletID:      wallet.ID,
			Amount:        delta,
			Kind:          kind,
			BalanceAfter:  balance,
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   description,
			PerformedBy:   performedBy,
		}
		return s.wallets.AddTransaction(ctx, txRow)
	})
	if err != nil {
		return nil, err
	}
	return txRow, nil
}

// Transfer moves funds between two patient wallets as an atomic debit and
// credit pair. The two ledger rows reference each other.
func (s *Service) Transfer(ctx context.Context, fromPatientID, toPatientID uuid.UUID, amount int64, performedBy string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %w", apperror.ErrInvalidAmount)
	}
	if fromPatientID == toPatientID {
		return fmt.Errorf("cannot transfer to the same wallet: %w", apperror.ErrInvalidState)
	}

	from, err := s.wallets.GetByPatient(ctx, fromPatientID)
	if err != nil {
		return fmt.Errorf("wallet for patient %s: %w", fromPatientID, apperror.ErrNotFound)
	}
	to, err := s.wallets.GetByPatient(ctx, toPatientID)
	if err != nil {
		return fmt.Errorf("wallet for patient %s: %w", toPatientID, apperror.ErrNotFound)
	}
	if from.Balance < amount {
		return fmt.Errorf("amount exceeds wallet balance: %w", apperror.ErrInvalidAmount)
	}

	return s.tx(ctx, func(ctx context.Context) error {
		fromBalance, err := s.wallets.AdjustBalance(ctx, from.ID, -amount)
		if err != nil {
			return err
		}
		if fromBalance < 0 {
			return fmt.Errorf("amount exceeds wallet balance: %w", apperror.ErrInvalidAmount)
		}
		toBalance, err := s.wallets.AdjustBalance(ctx, to.ID, amount)
		if err != nil {
			return err
		}

		out := &WalletTransaction{
			WalletID:     from.ID,
			Amount:       -amount,
			Kind:         TxTransferOut,
			BalanceAfter: fromBalance,
			Description:  fmt.Sprintf("transfer to patient %s", toPatientID),
			PerformedBy:  performedBy,
		}
		if err := s.wallets.AddTransaction(ctx, out); err != nil {
			return err
		}
		in := &WalletTransaction{
			WalletID:             to.ID,
			Amount:               amount,
			Kind:                 TxTransferIn,
			BalanceAfter:         toBalance,
			RelatedTransactionID: &out.ID,
			Description:          fmt.Sprintf("transfer from patient %s", fromPatientID),
			PerformedBy:          performedBy,
		}
		return s.wallets.AddTransaction(ctx, in)
	})
}

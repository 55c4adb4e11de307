package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
	GetNHIAProfile(ctx context.Context, patientID uuid.UUID) (*NHIAProfile, error)
	UpsertNHIAProfile(ctx context.Context, profile *NHIAProfile) error
}

type WalletRepository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Wallet, error)
	// AdjustBalance applies a signed delta with a row lock and returns the
	// resulting balance.
	AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64) (int64, error)
	AddTransaction(ctx context.Context, tx *WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*WalletTransaction, int, error)
}

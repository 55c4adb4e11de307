package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type StoreRepository interface {
	CreateDispensary(ctx context.Context, d *Dispensary) error
	GetDispensary(ctx context.Context, id uuid.UUID) (*Dispensary, error)
	UpdateDispensary(ctx context.Context, d *Dispensary) error
	DeactivateDispensary(ctx context.Context, id uuid.UUID) error
	ListDispensaries(ctx context.Context) ([]*Dispensary, error)

	CreateActiveStore(ctx context.Context, s *ActiveStore) error
	GetActiveStore(ctx context.Context, id uuid.UUID) (*ActiveStore, error)
	GetActiveStoreByDispensary(ctx context.Context, dispensaryID uuid.UUID) (*ActiveStore, error)

	CreateBulkStore(ctx context.Context, s *BulkStore) error
	GetBulkStore(ctx context.Context, id uuid.UUID) (*BulkStore, error)
	ListBulkStores(ctx context.Context) ([]*BulkStore, error)
}

type StockRepository interface {
	// UpsertBulkBatch and UpsertActiveBatch add quantity to the batch row,
	// creating it if absent.
	UpsertBulkBatch(ctx context.Context, row *BatchRow) error
	UpsertActiveBatch(ctx context.Context, row *BatchRow) error

	// ActiveAvailable sums non-expired batch quantities for the medication
	// in the active store. BulkAvailable does the same for a bulk store.
	ActiveAvailable(ctx context.Context, storeID, medicationID uuid.UUID) (int, error)
	BulkAvailable(ctx context.Context, storeID, medicationID uuid.UUID) (int, error)

	// BatchesFEFOForUpdate locks and returns the medication's non-expired
	// batches in the active store ordered by expiry, receipt, batch number.
	BatchesFEFOForUpdate(ctx context.Context, storeID, medicationID uuid.UUID) ([]*BatchRow, error)
	// GetBulkBatchForUpdate locks one bulk batch row.
	GetBulkBatchForUpdate(ctx context.Context, storeID, medicationID uuid.UUID, batchNumber string) (*BatchRow, error)
	// DecrementBatch subtracts quantity from a batch row; the row's CHECK
	// constraint rejects a negative result.
	DecrementBatch(ctx context.Context, rowID uuid.UUID, quantity int) error

	// Legacy flat inventory.
	GetLegacy(ctx context.Context, dispensaryID, medicationID uuid.UUID) (*LegacyRow, error)
	GetLegacyForUpdate(ctx context.Context, dispensaryID, medicationID uuid.UUID) (*LegacyRow, error)
	DecrementLegacy(ctx context.Context, rowID uuid.UUID, quantity int) error
	ListLegacyByDispensary(ctx context.Context, dispensaryID uuid.UUID) ([]*LegacyRow, error)
	DeleteLegacy(ctx context.Context, rowID uuid.UUID) error

	LowStock(ctx context.Context) ([]*StockLevel, error)
	ExpiringBatches(ctx context.Context, before time.Time) ([]*ExpiringBatch, error)
}

type TransferRepository interface {
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error)
	Update(ctx context.Context, t *Transfer) error
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Transfer, int, error)
}

type PurchaseRepository interface {
	Create(ctx context.Context, p *Purchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Purchase, int, error)
}

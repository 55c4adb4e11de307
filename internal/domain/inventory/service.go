package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hms/hms/internal/domain/medication"
	"github.com/hms/hms/pkg/apperror"
)

// TxRunner executes fn atomically. Production wiring passes db.WithTx bound
// to the pool.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Notifier receives stock alerts. Satisfied by notification.Manager.
type Notifier interface {
	NotifyStockLow(ctx context.Context, recipient, medication, location string, quantity, reorderLevel int)
	NotifyStockExpired(ctx context.Context, recipient, medication, location, batchNumber, expiryDate string)
}

// AlternativesLister resolves substitution candidates. Satisfied by
// medication.Repository.
type AlternativesLister interface {
	ListAlternatives(ctx context.Context, id uuid.UUID) ([]*medication.Medication, error)
}

// legacyMigrationExpiry is the synthetic expiry stamped on rows produced by
// the legacy flat-inventory migration, which carries no expiry data.
var legacyMigrationExpiry = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)

type Service struct {
	stores         StoreRepository
	stock          StockRepository
	transfers      TransferRepository
	purchases      PurchaseRepository
	medications    AlternativesLister
	notifier       Notifier
	alertRecipient string
	tx             TxRunner
}

func NewService(
	stores StoreRepository,
	stock StockRepository,
	transfers TransferRepository,
	purchases PurchaseRepository,
	meds AlternativesLister,
	notifier Notifier,
	alertRecipient string,
	tx TxRunner,
) *Service {
	return &Service{
		stores:         stores,
		stock:          stock,
		transfers:      transfers,
		purchases:      purchases,
		medications:    meds,
		notifier:       notifier,
		alertRecipient: alertRecipient,
		tx:             tx,
	}
}

// -- Stores --

// CreateDispensary creates the dispensary and its active store together.
func (s *Service) CreateDispensary(ctx context.Context, d *Dispensary) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	d.IsActive = true
	return s.tx(ctx, func(ctx context.Context) error {
		if err := s.stores.CreateDispensary(ctx, d); err != nil {
			return err
		}
		store := &ActiveStore{DispensaryID: d.ID, Name: d.Name + " Active Store"}
		if err := s.stores.CreateActiveStore(ctx, store); err != nil {
			return err
		}
		d.ActiveStoreID = &store.ID
		return nil
	})
}

func (s *Service) GetDispensary(ctx context.Context, id uuid.UUID) (*Dispensary, error) {
	return s.stores.GetDispensary(ctx, id)
}

func (s *Service) UpdateDispensary(ctx context.Context, d *Dispensary) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.stores.UpdateDispensary(ctx, d)
}

func (s *Service) DeactivateDispensary(ctx context.Context, id uuid.UUID) error {
	return s.stores.DeactivateDispensary(ctx, id)
}

func (s *Service) ListDispensaries(ctx context.Context) ([]*Dispensary, error) {
	return s.stores.ListDispensaries(ctx)
}

func (s *Service) CreateBulkStore(ctx context.Context, b *BulkStore) error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	b.IsActive = true
	return s.stores.CreateBulkStore(ctx, b)
}

func (s *Service) ListBulkStores(ctx context.Context) ([]*BulkStore, error) {
	return s.stores.ListBulkStores(ctx)
}

// -- Availability --

// Available sums non-expired batch stock in the dispensary's active store
// plus any legacy flat row.
func (s *Service) Available(ctx context.Context, dispensaryID, medicationID uuid.UUID) (int, error) {
	store, err := s.stores.GetActiveStoreByDispensary(ctx, dispensaryID)
	if err != nil {
		return 0, fmt.Errorf("active store for dispensary %s: %w", dispensaryID, apperror.ErrNotFound)
	}
	total, err := s.stock.ActiveAvailable(ctx, store.ID, medicationID)
	if err != nil {
		return 0, err
	}
	legacy, err := s.stock.GetLegacy(ctx, dispensaryID, medicationID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if legacy != nil {
		total += legacy.Quantity
	}
	return total, nil
}

// AlternativeStock pairs an interchangeable medication with its availability
// in the same dispensary.
type AlternativeStock struct {
	Medication *medication.Medication `json:"medication"`
	Available  int                    `json:"available"`
}

// Alternatives lists in-stock substitution candidates for a medication in
// the given dispensary.
func (s *Service) Alternatives(ctx context.Context, dispensaryID, medicationID uuid.UUID) ([]*AlternativeStock, error) {
	meds, err := s.medications.ListAlternatives(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	var result []*AlternativeStock
	for _, m := range meds {
		qty, err := s.Available(ctx, dispensaryID, m.ID)
		if err != nil {
			return nil, err
		}
		if qty > 0 {
			result = append(result, &AlternativeStock{Medication: m, Available: qty})
		}
	}
	return result, nil
}

// -- FEFO deduction --

// Deduct consumes stock for the medication in the dispensary's active store,
// earliest expiry first, falling back to the legacy flat row when batches
// run out. A request that cannot be fully satisfied fails without consuming
// anything. Runs inside the caller's transaction when one is open.
func (s *Service) Deduct(ctx context.Context, dispensaryID, medicationID uuid.UUID, quantity int) ([]BatchDeduction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("deduction quantity must be positive: %w", apperror.ErrInvalidAmount)
	}
	store, err := s.stores.GetActiveStoreByDispensary(ctx, dispensaryID)
	if err != nil {
		return nil, fmt.Errorf("active store for dispensary %s: %w", dispensaryID, apperror.ErrNotFound)
	}

	var deductions []BatchDeduction
	err = s.tx(ctx, func(ctx context.Context) error {
		batches, err := s.stock.BatchesFEFOForUpdate(ctx, store.ID, medicationID)
		if err != nil {
			return err
		}

		remaining := quantity
		for _, batch := range batches {
			if remaining == 0 {
				break
			}
			take := batch.Quantity
			if take > remaining {
				take = remaining
			}
			if err := s.stock.DecrementBatch(ctx, batch.ID, take); err != nil {
				return err
			}
			deductions = append(deductions, BatchDeduction{
				BatchNumber: batch.BatchNumber,
				Quantity:    take,
				UnitCost:    batch.UnitCost,
				ExpiryDate:  batch.ExpiryDate,
			})
			remaining -= take
		}

		if remaining > 0 {
			legacy, err := s.stock.GetLegacyForUpdate(ctx, dispensaryID, medicationID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if legacy != nil && legacy.Quantity >= remaining {
				if err := s.stock.DecrementLegacy(ctx, legacy.ID, remaining); err != nil {
					return err
				}
				deductions = append(deductions, BatchDeduction{
					BatchNumber: LegacyBatchNumber,
					Quantity:    remaining,
				})
				remaining = 0
			}
		}

		if remaining > 0 {
			return fmt.Errorf("medication %s short by %d units: %w",
				medicationID, remaining, apperror.ErrInsufficientStock)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deductions, nil
}

// -- Purchases --

func (s *Service) CreatePurchase(ctx context.Context, p *Purchase) error {
	if p.SupplierID == uuid.Nil {
		return fmt.Errorf("supplier_id is required")
	}
	if p.BulkStoreID == uuid.Nil {
		return fmt.Errorf("bulk_store_id is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("purchase requires at least one item")
	}
	var total int64
	for _, item := range p.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item quantity must be positive: %w", apperror.ErrInvalidAmount)
		}
		if item.BatchNumber == "" {
			return fmt.Errorf("batch_number is required on every item")
		}
		if !item.ExpiryDate.After(time.Now()) {
			return fmt.Errorf("batch %s is already expired: %w", item.BatchNumber, apperror.ErrInvalidState)
		}
		total += int64(item.Quantity) * item.UnitCost
	}
	p.TotalCost = total
	if p.ApprovalStatus == "" {
		p.ApprovalStatus = PurchasePending
	}
	if p.ApprovalStatus != PurchaseDraft && p.ApprovalStatus != PurchasePending {
		return fmt.Errorf("new purchase must be draft or pending: %w", apperror.ErrInvalidState)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		return s.purchases.Create(ctx, p)
	})
}

func (s *Service) GetPurchase(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	return s.purchases.GetByID(ctx, id)
}

func (s *Service) ListPurchases(ctx context.Context, params map[string]string, limit, offset int) ([]*Purchase, int, error) {
	return s.purchases.List(ctx, params, limit, offset)
}

func (s *Service) ApprovePurchase(ctx context.Context, id uuid.UUID) error {
	return s.movePurchase(ctx, id, PurchasePending, PurchaseApproved)
}

func (s *Service) RejectPurchase(ctx context.Context, id uuid.UUID) error {
	return s.movePurchase(ctx, id, PurchasePending, PurchaseRejected)
}

func (s *Service) CancelPurchase(ctx context.Context, id uuid.UUID) error {
	p, err := s.purchases.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", id, apperror.ErrNotFound)
	}
	if p.ApprovalStatus == PurchaseReceived {
		return fmt.Errorf("received purchase cannot be cancelled: %w", apperror.ErrInvalidState)
	}
	return s.purchases.UpdateStatus(ctx, id, PurchaseCancelled)
}

func (s *Service) movePurchase(ctx context.Context, id uuid.UUID, from, to string) error {
	p, err := s.purchases.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", id, apperror.ErrNotFound)
	}
	if p.ApprovalStatus != from {
		return fmt.Errorf("purchase is %s, expected %s: %w", p.ApprovalStatus, from, apperror.ErrInvalidState)
	}
	return s.purchases.UpdateStatus(ctx, id, to)
}

// ReceivePurchase lands every item of an approved purchase in the bulk
// store as batch rows, atomically with the status change.
func (s *Service) ReceivePurchase(ctx context.Context, id uuid.UUID) error {
	p, err := s.purchases.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("purchase %s: %w", id, apperror.ErrNotFound)
	}
	if p.ApprovalStatus != PurchaseApproved {
		return fmt.Errorf("purchase is %s, expected approved: %w", p.ApprovalStatus, apperror.ErrInvalidState)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		for _, item := range p.Items {
			if !item.ExpiryDate.After(time.Now()) {
				return fmt.Errorf("batch %s is already expired: %w", item.BatchNumber, apperror.ErrInvalidState)
			}
			row := &BatchRow{
				StoreID:      p.BulkStoreID,
				MedicationID: item.MedicationID,
				BatchNumber:  item.BatchNumber,
				ExpiryDate:   item.ExpiryDate,
				Quantity:     item.Quantity,
				UnitCost:     item.UnitCost,
			}
			if err := s.stock.UpsertBulkBatch(ctx, row); err != nil {
				return err
			}
		}
		return s.purchases.UpdateStatus(ctx, id, PurchaseReceived)
	})
}

// -- Transfers --

func (s *Service) RequestTransfer(ctx context.Context, t *Transfer) error {
	if t.Quantity <= 0 {
		return fmt.Errorf("transfer quantity must be positive: %w", apperror.ErrInvalidAmount)
	}
	if t.BatchNumber == "" {
		return fmt.Errorf("batch_number is required")
	}
	batch, err := s.stock.GetBulkBatchForUpdate(ctx, t.SourceStoreID, t.MedicationID, t.BatchNumber)
	if err != nil {
		return fmt.Errorf("batch %s in source store: %w", t.BatchNumber, apperror.ErrNotFound)
	}
	if batch.Quantity < t.Quantity {
		return fmt.Errorf("batch %s has %d units, requested %d: %w",
			t.BatchNumber, batch.Quantity, t.Quantity, apperror.ErrInsufficientStock)
	}
	t.Status = TransferRequested
	return s.transfers.Create(ctx, t)
}

func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return s.transfers.GetByID(ctx, id)
}

func (s *Service) ListTransfers(ctx context.Context, params map[string]string, limit, offset int) ([]*Transfer, int, error) {
	return s.transfers.List(ctx, params, limit, offset)
}

func (s *Service) ApproveTransfer(ctx context.Context, id uuid.UUID, approvedBy string) error {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", id, apperror.ErrNotFound)
	}
	if t.Status != TransferRequested {
		return fmt.Errorf("transfer is %s, expected requested: %w", t.Status, apperror.ErrInvalidState)
	}
	now := time.Now()
	t.Status = TransferApproved
	t.ApprovedBy = approvedBy
	t.ApprovedAt = &now
	return s.transfers.Update(ctx, t)
}

func (s *Service) RejectTransfer(ctx context.Context, id uuid.UUID, rejectedBy, reason string) error {
	if reason == "" {
		return fmt.Errorf("reject_reason is required")
	}
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", id, apperror.ErrNotFound)
	}
	if t.Status != TransferRequested {
		return fmt.Errorf("transfer is %s, expected requested: %w", t.Status, apperror.ErrInvalidState)
	}
	t.Status = TransferRejected
	t.RejectedBy = rejectedBy
	t.RejectReason = reason
	return s.transfers.Update(ctx, t)
}

// ExecuteTransfer moves the batch from bulk to active stock. Decrement and
// increment commit together; the destination row carries the same batch
// number, expiry and unit cost as the source.
func (s *Service) ExecuteTransfer(ctx context.Context, id uuid.UUID, executedBy string) error {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", id, apperror.ErrNotFound)
	}
	if t.Status != TransferApproved {
		return fmt.Errorf("transfer is %s, expected approved: %w", t.Status, apperror.ErrInvalidState)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		batch, err := s.stock.GetBulkBatchForUpdate(ctx, t.SourceStoreID, t.MedicationID, t.BatchNumber)
		if err != nil {
			return fmt.Errorf("batch %s in source store: %w", t.BatchNumber, apperror.ErrNotFound)
		}
		if batch.Quantity < t.Quantity {
			return fmt.Errorf("batch %s has %d units, requested %d: %w",
				t.BatchNumber, batch.Quantity, t.Quantity, apperror.ErrInsufficientStock)
		}
		if err := s.stock.DecrementBatch(ctx, batch.ID, t.Quantity); err != nil {
			return err
		}
		dest := &BatchRow{
			StoreID:      t.DestStoreID,
			MedicationID: t.MedicationID,
			BatchNumber:  batch.BatchNumber,
			ExpiryDate:   batch.ExpiryDate,
			Quantity:     t.Quantity,
			UnitCost:     batch.UnitCost,
		}
		if err := s.stock.UpsertActiveBatch(ctx, dest); err != nil {
			return err
		}
		now := time.Now()
		t.Status = TransferExecuted
		t.ExecutedBy = executedBy
		t.ExecutedAt = &now
		return s.transfers.Update(ctx, t)
	})
}

// -- Reports and alerts --

// LowStockReport returns medications at or below reorder level and emits a
// stock.low alert per row.
func (s *Service) LowStockReport(ctx context.Context) ([]*StockLevel, error) {
	levels, err := s.stock.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		for _, l := range levels {
			s.notifier.NotifyStockLow(ctx, s.alertRecipient, l.MedicationName, l.StoreName, l.Quantity, l.ReorderLevel)
		}
	}
	return levels, nil
}

// ExpiringReport returns batches expiring within the window and emits a
// stock.expired alert for batches already past expiry.
func (s *Service) ExpiringReport(ctx context.Context, within time.Duration) ([]*ExpiringBatch, error) {
	batches, err := s.stock.ExpiringBatches(ctx, time.Now().Add(within))
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		now := time.Now()
		for _, b := range batches {
			if b.ExpiryDate.Before(now) {
				s.notifier.NotifyStockExpired(ctx, s.alertRecipient, b.MedicationName, b.StoreName,
					b.BatchNumber, b.ExpiryDate.Format("2006-01-02"))
			}
		}
	}
	return batches, nil
}

// MigrateLegacyInventory converts the dispensary's flat legacy rows into
// synthetic single-batch rows in its active store and removes the originals.
// Returns the number of rows migrated.
func (s *Service) MigrateLegacyInventory(ctx context.Context, dispensaryID uuid.UUID) (int, error) {
	store, err := s.stores.GetActiveStoreByDispensary(ctx, dispensaryID)
	if err != nil {
		return 0, fmt.Errorf("active store for dispensary %s: %w", dispensaryID, apperror.ErrNotFound)
	}
	migrated := 0
	err = s.tx(ctx, func(ctx context.Context) error {
		legacy, err := s.stock.ListLegacyByDispensary(ctx, dispensaryID)
		if err != nil {
			return err
		}
		for _, row := range legacy {
			if row.Quantity > 0 {
				batch := &BatchRow{
					StoreID:      store.ID,
					MedicationID: row.MedicationID,
					BatchNumber:  LegacyBatchNumber,
					ExpiryDate:   legacyMigrationExpiry,
					Quantity:     row.Quantity,
				}
				if err := s.stock.UpsertActiveBatch(ctx, batch); err != nil {
					return err
				}
			}
			if err := s.stock.DeleteLegacy(ctx, row.ID); err != nil {
				return err
			}
			migrated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return migrated, nil
}

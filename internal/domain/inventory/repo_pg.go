package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/search"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- Stores --

type storeRepoPG struct{ pool *pgxpool.Pool }

func NewStoreRepoPG(pool *pgxpool.Pool) StoreRepository {
	return &storeRepoPG{pool: pool}
}

func (r *storeRepoPG) CreateDispensary(ctx context.Context, d *Dispensary) error {
	d.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO dispensary (id, name, location, is_active)
		VALUES ($1,$2,$3,$4)`,
		d.ID, d.Name, d.Location, d.IsActive)
	return err
}

const dispensaryCols = `d.id, d.name, d.location, s.id, d.is_active, d.created_at, d.updated_at`

func scanDispensary(row pgx.Row) (*Dispensary, error) {
	var d Dispensary
	err := row.Scan(&d.ID, &d.Name, &d.Location, &d.ActiveStoreID, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *storeRepoPG) GetDispensary(ctx context.Context, id uuid.UUID) (*Dispensary, error) {
	return scanDispensary(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+dispensaryCols+`
		FROM dispensary d
		LEFT JOIN active_store s ON s.dispensary_id = d.id
		WHERE d.id = $1`, id))
}

func (r *storeRepoPG) UpdateDispensary(ctx context.Context, d *Dispensary) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE dispensary SET name=$2, location=$3, is_active=$4, updated_at=NOW() WHERE id = $1`,
		d.ID, d.Name, d.Location, d.IsActive)
	return err
}

func (r *storeRepoPG) DeactivateDispensary(ctx context.Context, id uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `UPDATE dispensary SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *storeRepoPG) ListDispensaries(ctx context.Context) ([]*Dispensary, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+dispensaryCols+`
		FROM dispensary d
		LEFT JOIN active_store s ON s.dispensary_id = d.id
		ORDER BY d.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Dispensary
	for rows.Next() {
		d, err := scanDispensary(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

func (r *storeRepoPG) CreateActiveStore(ctx context.Context, s *ActiveStore) error {
	s.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO active_store (id, dispensary_id, name) VALUES ($1,$2,$3)`,
		s.ID, s.DispensaryID, s.Name)
	return err
}

func scanActiveStore(row pgx.Row) (*ActiveStore, error) {
	var s ActiveStore
	err := row.Scan(&s.ID, &s.DispensaryID, &s.Name, &s.CreatedAt)
	return &s, err
}

func (r *storeRepoPG) GetActiveStore(ctx context.Context, id uuid.UUID) (*ActiveStore, error) {
	return scanActiveStore(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, dispensary_id, name, created_at FROM active_store WHERE id = $1`, id))
}

func (r *storeRepoPG) GetActiveStoreByDispensary(ctx context.Context, dispensaryID uuid.UUID) (*ActiveStore, error) {
	return scanActiveStore(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, dispensary_id, name, created_at FROM active_store WHERE dispensary_id = $1`, dispensaryID))
}

func (r *storeRepoPG) CreateBulkStore(ctx context.Context, s *BulkStore) error {
	s.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bulk_store (id, name, is_active) VALUES ($1,$2,$3)`,
		s.ID, s.Name, s.IsActive)
	return err
}

func (r *storeRepoPG) GetBulkStore(ctx context.Context, id uuid.UUID) (*BulkStore, error) {
	var s BulkStore
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, name, is_active, created_at FROM bulk_store WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.IsActive, &s.CreatedAt)
	return &s, err
}

func (r *storeRepoPG) ListBulkStores(ctx context.Context) ([]*BulkStore, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, name, is_active, created_at FROM bulk_store ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BulkStore
	for rows.Next() {
		var s BulkStore
		if err := rows.Scan(&s.ID, &s.Name, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, nil
}

// -- Stock --

type stockRepoPG struct{ pool *pgxpool.Pool }

func NewStockRepoPG(pool *pgxpool.Pool) StockRepository {
	return &stockRepoPG{pool: pool}
}

func (r *stockRepoPG) upsertBatch(ctx context.Context, table string, row *BatchRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO `+table+` (id, store_id, medication_id, batch_number, expiry_date, quantity, unit_cost)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (store_id, medication_id, batch_number) DO UPDATE
		SET quantity = `+table+`.quantity + EXCLUDED.quantity`,
		row.ID, row.StoreID, row.MedicationID, row.BatchNumber, row.ExpiryDate, row.Quantity, row.UnitCost)
	return err
}

func (r *stockRepoPG) UpsertBulkBatch(ctx context.Context, row *BatchRow) error {
	return r.upsertBatch(ctx, "bulk_store_inventory", row)
}

func (r *stockRepoPG) UpsertActiveBatch(ctx context.Context, row *BatchRow) error {
	return r.upsertBatch(ctx, "active_store_inventory", row)
}

func (r *stockRepoPG) available(ctx context.Context, table string, storeID, medicationID uuid.UUID) (int, error) {
	var total int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM `+table+`
		WHERE store_id = $1 AND medication_id = $2 AND expiry_date > NOW()`,
		storeID, medicationID).Scan(&total)
	return total, err
}

func (r *stockRepoPG) ActiveAvailable(ctx context.Context, storeID, medicationID uuid.UUID) (int, error) {
	return r.available(ctx, "active_store_inventory", storeID, medicationID)
}

func (r *stockRepoPG) BulkAvailable(ctx context.Context, storeID, medicationID uuid.UUID) (int, error) {
	return r.available(ctx, "bulk_store_inventory", storeID, medicationID)
}

const batchCols = `id, store_id, medication_id, batch_number, expiry_date, quantity, unit_cost, received_at`

func scanBatch(row pgx.Row) (*BatchRow, error) {
	var b BatchRow
	err := row.Scan(&b.ID, &b.StoreID, &b.MedicationID, &b.BatchNumber, &b.ExpiryDate,
		&b.Quantity, &b.UnitCost, &b.ReceivedAt)
	return &b, err
}

func (r *stockRepoPG) BatchesFEFOForUpdate(ctx context.Context, storeID, medicationID uuid.UUID) ([]*BatchRow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+batchCols+` FROM active_store_inventory
		WHERE store_id = $1 AND medication_id = $2 AND expiry_date > NOW() AND quantity > 0
		ORDER BY expiry_date ASC, received_at ASC, batch_number ASC
		FOR UPDATE`, storeID, medicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BatchRow
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

func (r *stockRepoPG) GetBulkBatchForUpdate(ctx context.Context, storeID, medicationID uuid.UUID, batchNumber string) (*BatchRow, error) {
	return scanBatch(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+batchCols+` FROM bulk_store_inventory
		WHERE store_id = $1 AND medication_id = $2 AND batch_number = $3
		FOR UPDATE`, storeID, medicationID, batchNumber))
}

func (r *stockRepoPG) DecrementBatch(ctx context.Context, rowID uuid.UUID, quantity int) error {
	// Both inventory tables share the batch row shape; the id is unique
	// across each, so try active first then bulk.
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE active_store_inventory SET quantity = quantity - $2 WHERE id = $1`, rowID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = conn(ctx, r.pool).Exec(ctx, `
		UPDATE bulk_store_inventory SET quantity = quantity - $2 WHERE id = $1`, rowID, quantity)
	return err
}

func scanLegacy(row pgx.Row) (*LegacyRow, error) {
	var l LegacyRow
	err := row.Scan(&l.ID, &l.DispensaryID, &l.MedicationID, &l.Quantity, &l.UpdatedAt)
	return &l, err
}

func (r *stockRepoPG) GetLegacy(ctx context.Context, dispensaryID, medicationID uuid.UUID) (*LegacyRow, error) {
	return scanLegacy(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, dispensary_id, medication_id, quantity, updated_at
		FROM medication_inventory
		WHERE dispensary_id = $1 AND medication_id = $2`, dispensaryID, medicationID))
}

func (r *stockRepoPG) GetLegacyForUpdate(ctx context.Context, dispensaryID, medicationID uuid.UUID) (*LegacyRow, error) {
	return scanLegacy(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, dispensary_id, medication_id, quantity, updated_at
		FROM medication_inventory
		WHERE dispensary_id = $1 AND medication_id = $2
		FOR UPDATE`, dispensaryID, medicationID))
}

func (r *stockRepoPG) DecrementLegacy(ctx context.Context, rowID uuid.UUID, quantity int) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE medication_inventory SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1`,
		rowID, quantity)
	return err
}

func (r *stockRepoPG) ListLegacyByDispensary(ctx context.Context, dispensaryID uuid.UUID) ([]*LegacyRow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, dispensary_id, medication_id, quantity, updated_at
		FROM medication_inventory WHERE dispensary_id = $1
		FOR UPDATE`, dispensaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LegacyRow
	for rows.Next() {
		l, err := scanLegacy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, nil
}

func (r *stockRepoPG) DeleteLegacy(ctx context.Context, rowID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM medication_inventory WHERE id = $1`, rowID)
	return err
}

func (r *stockRepoPG) LowStock(ctx context.Context) ([]*StockLevel, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT i.medication_id, m.name, i.store_id, s.name,
			COALESCE(SUM(i.quantity), 0), m.reorder_level
		FROM active_store_inventory i
		JOIN medication m ON m.id = i.medication_id
		JOIN active_store s ON s.id = i.store_id
		WHERE i.expiry_date > NOW()
		GROUP BY i.medication_id, m.name, i.store_id, s.name, m.reorder_level
		HAVING COALESCE(SUM(i.quantity), 0) <= m.reorder_level
		ORDER BY m.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.MedicationID, &l.MedicationName, &l.StoreID, &l.StoreName,
			&l.Quantity, &l.ReorderLevel); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, nil
}

func (r *stockRepoPG) ExpiringBatches(ctx context.Context, before time.Time) ([]*ExpiringBatch, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT i.medication_id, m.name, i.store_id, s.name, i.batch_number, i.expiry_date, i.quantity
		FROM active_store_inventory i
		JOIN medication m ON m.id = i.medication_id
		JOIN active_store s ON s.id = i.store_id
		WHERE i.expiry_date <= $1 AND i.quantity > 0
		ORDER BY i.expiry_date ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ExpiringBatch
	for rows.Next() {
		var b ExpiringBatch
		if err := rows.Scan(&b.MedicationID, &b.MedicationName, &b.StoreID, &b.StoreName,
			&b.BatchNumber, &b.ExpiryDate, &b.Quantity); err != nil {
			return nil, err
		}
		items = append(items, &b)
	}
	return items, nil
}

// -- Transfers --

type transferRepoPG struct{ pool *pgxpool.Pool }

func NewTransferRepoPG(pool *pgxpool.Pool) TransferRepository {
	return &transferRepoPG{pool: pool}
}

const transferCols = `id, source_store_id, dest_store_id, medication_id, batch_number, quantity,
	status, requested_by, approved_by, executed_by, rejected_by, reject_reason,
	requested_at, approved_at, executed_at`

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.SourceStoreID, &t.DestStoreID, &t.MedicationID, &t.BatchNumber, &t.Quantity,
		&t.Status, &t.RequestedBy, &t.ApprovedBy, &t.ExecutedBy, &t.RejectedBy, &t.RejectReason,
		&t.RequestedAt, &t.ApprovedAt, &t.ExecutedAt)
	return &t, err
}

func (r *transferRepoPG) Create(ctx context.Context, t *Transfer) error {
	t.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medication_transfer (id, source_store_id, dest_store_id, medication_id,
			batch_number, quantity, status, requested_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.SourceStoreID, t.DestStoreID, t.MedicationID,
		t.BatchNumber, t.Quantity, t.Status, t.RequestedBy)
	return err
}

func (r *transferRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return scanTransfer(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+transferCols+` FROM medication_transfer WHERE id = $1`, id))
}

func (r *transferRepoPG) Update(ctx context.Context, t *Transfer) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE medication_transfer
		SET status=$2, approved_by=$3, executed_by=$4, rejected_by=$5, reject_reason=$6,
			approved_at=$7, executed_at=$8
		WHERE id = $1`,
		t.ID, t.Status, t.ApprovedBy, t.ExecutedBy, t.RejectedBy, t.RejectReason,
		t.ApprovedAt, t.ExecutedAt)
	return err
}

var transferSearchParams = map[string]search.ParamConfig{
	"status":          {Type: search.ParamExact, Column: "status"},
	"medication_id":   {Type: search.ParamExact, Column: "medication_id"},
	"source_store_id": {Type: search.ParamExact, Column: "source_store_id"},
	"dest_store_id":   {Type: search.ParamExact, Column: "dest_store_id"},
}

func (r *transferRepoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Transfer, int, error) {
	q := search.New("medication_transfer", transferCols)
	q.ApplyParams(params, transferSearchParams)
	q.OrderBy("requested_at DESC")

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

// -- Purchases --

type purchaseRepoPG struct{ pool *pgxpool.Pool }

func NewPurchaseRepoPG(pool *pgxpool.Pool) PurchaseRepository {
	return &purchaseRepoPG{pool: pool}
}

const purchaseCols = `id, supplier_id, bulk_store_id, invoice_number, approval_status,
	total_cost, created_by, created_at, updated_at`

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.SupplierID, &p.BulkStoreID, &p.InvoiceNumber, &p.ApprovalStatus,
		&p.TotalCost, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *purchaseRepoPG) Create(ctx context.Context, p *Purchase) error {
	p.ID = uuid.New()
	q := conn(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO purchase (id, supplier_id, bulk_store_id, invoice_number, approval_status,
			total_cost, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.SupplierID, p.BulkStoreID, p.InvoiceNumber, p.ApprovalStatus,
		p.TotalCost, p.CreatedBy)
	if err != nil {
		return err
	}
	for _, item := range p.Items {
		item.ID = uuid.New()
		item.PurchaseID = p.ID
		_, err := q.Exec(ctx, `
			INSERT INTO purchase_item (id, purchase_id, medication_id, batch_number,
				expiry_date, quantity, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			item.ID, item.PurchaseID, item.MedicationID, item.BatchNumber,
			item.ExpiryDate, item.Quantity, item.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *purchaseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	p, err := scanPurchase(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+purchaseCols+` FROM purchase WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, purchase_id, medication_id, batch_number, expiry_date, quantity, unit_cost
		FROM purchase_item WHERE purchase_id = $1
		ORDER BY batch_number ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.MedicationID, &item.BatchNumber,
			&item.ExpiryDate, &item.Quantity, &item.UnitCost); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, &item)
	}
	return p, nil
}

func (r *purchaseRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE purchase SET approval_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

var purchaseSearchParams = map[string]search.ParamConfig{
	"supplier_id":     {Type: search.ParamExact, Column: "supplier_id"},
	"approval_status": {Type: search.ParamExact, Column: "approval_status"},
	"invoice_number":  {Type: search.ParamString, Column: "invoice_number"},
}

func (r *purchaseRepoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Purchase, int, error) {
	q := search.New("purchase", purchaseCols)
	q.ApplyParams(params, purchaseSearchParams)
	q.OrderBy("created_at DESC")

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

package cart

import (
	"context"
	"errors"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cartCols = `id, prescription_id, pharmacist_id, dispensary_id, status, invoice_id, created_at, updated_at`

func scanCart(row pgx.Row) (*Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.PrescriptionID, &c.PharmacistID, &c.DispensaryID, &c.Status,
		&c.InvoiceID, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Cart) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_cart (id, prescription_id, pharmacist_id, dispensary_id, status, invoice_id)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.PrescriptionID, c.PharmacistID, c.DispensaryID, c.Status, c.InvoiceID)
	return err
}

func (r *repoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Cart, error) {
	c, err := scanCart(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cartCols+` FROM prescription_cart WHERE id = $1`+lock, id))
	if err != nil {
		return nil, err
	}
	c.Items, err = r.ListItems(ctx, id)
	return c, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	return r.get(ctx, id, "")
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Cart, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *repoPG) Update(ctx context.Context, c *Cart) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_cart
		SET dispensary_id=$2, status=$3, invoice_id=$4, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.DispensaryID, c.Status, c.InvoiceID)
	return err
}

func (r *repoPG) GetActiveByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*Cart, error) {
	c, err := scanCart(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cartCols+` FROM prescription_cart WHERE prescription_id = $1 AND status = $2`,
		prescriptionID, CartActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Items, err = r.ListItems(ctx, c.ID)
	return c, err
}

func (r *repoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Cart, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cartCols+` FROM prescription_cart WHERE prescription_id = $1 ORDER BY created_at`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var carts []*Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, err
		}
		carts = append(carts, c)
	}
	return carts, nil
}

var cartSearchParams = map[string]search.ParamConfig{
	"prescription_id": {Type: search.ParamExact, Column: "prescription_id"},
	"pharmacist_id":   {Type: search.ParamExact, Column: "pharmacist_id"},
	"dispensary_id":   {Type: search.ParamExact, Column: "dispensary_id"},
	"status":          {Type: search.ParamExact, Column: "status"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Cart, int, error) {
	q := search.New("prescription_cart", cartCols)
	q.ApplyParams(params, cartSearchParams)
	q.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var carts []*Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, 0, err
		}
		carts = append(carts, c)
	}
	return carts, total, nil
}

const itemCols = `id, cart_id, prescription_item_id, medication_id, quantity, quantity_dispensed,
	unit_price_snapshot, available_stock_snapshot, substitute_medication_id, substitute_reason,
	substituted_by, substituted_at, created_at`

func scanCartItem(row pgx.Row) (*CartItem, error) {
	var i CartItem
	err := row.Scan(&i.ID, &i.CartID, &i.PrescriptionItemID, &i.MedicationID, &i.Quantity,
		&i.QuantityDispensed, &i.UnitPriceSnapshot, &i.AvailableStockSnapshot,
		&i.SubstituteMedicationID, &i.SubstituteReason, &i.SubstitutedBy, &i.SubstitutedAt, &i.CreatedAt)
	return &i, err
}

func (r *repoPG) AddItem(ctx context.Context, item *CartItem) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_cart_item (id, cart_id, prescription_item_id, medication_id,
			quantity, quantity_dispensed, unit_price_snapshot, available_stock_snapshot)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.CartID, item.PrescriptionItemID, item.MedicationID,
		item.Quantity, item.QuantityDispensed, item.UnitPriceSnapshot, item.AvailableStockSnapshot)
	return err
}

func (r *repoPG) GetItem(ctx context.Context, id uuid.UUID) (*CartItem, error) {
	return scanCartItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM prescription_cart_item WHERE id = $1`, id))
}

func (r *repoPG) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*CartItem, error) {
	return scanCartItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM prescription_cart_item WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) UpdateItem(ctx context.Context, item *CartItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_cart_item
		SET quantity=$2, quantity_dispensed=$3, unit_price_snapshot=$4, available_stock_snapshot=$5,
			substitute_medication_id=$6, substitute_reason=$7, substituted_by=$8, substituted_at=$9
		WHERE id = $1`,
		item.ID, item.Quantity, item.QuantityDispensed, item.UnitPriceSnapshot, item.AvailableStockSnapshot,
		item.SubstituteMedicationID, item.SubstituteReason, item.SubstitutedBy, item.SubstitutedAt)
	return err
}

func (r *repoPG) RemoveItem(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescription_cart_item WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListItems(ctx context.Context, cartID uuid.UUID) ([]*CartItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM prescription_cart_item WHERE cart_id = $1 ORDER BY created_at`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CartItem
	for rows.Next() {
		i, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, nil
}

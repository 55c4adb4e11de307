package billing

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const invoiceCols = `id, patient_id, prescription_id, subtotal, tax, discount, total_amount,
	nhia_coverage, amount_paid, status, due_date, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var i Invoice
	err := row.Scan(&i.ID, &i.PatientID, &i.PrescriptionID, &i.Subtotal, &i.Tax, &i.Discount,
		&i.TotalAmount, &i.NHIACoverage, &i.AmountPaid, &i.Status, &i.DueDate, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *repoPG) CreateInvoice(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO pharmacy_invoice (id, patient_id, prescription_id, subtotal, tax, discount,
			total_amount, nhia_coverage, amount_paid, status, due_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.PatientID, inv.PrescriptionID, inv.Subtotal, inv.Tax, inv.Discount,
		inv.TotalAmount, inv.NHIACoverage, inv.AmountPaid, inv.Status, inv.DueDate)
	if err != nil {
		return err
	}
	for _, item := range inv.Items {
		item.InvoiceID = inv.ID
		if err := r.AddItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) getInvoice(ctx context.Context, id uuid.UUID, lock string) (*Invoice, error) {
	inv, err := scanInvoice(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM pharmacy_invoice WHERE id = $1`+lock, id))
	if err != nil {
		return nil, err
	}
	inv.Items, err = r.ListItems(ctx, id)
	return inv, err
}

func (r *repoPG) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.getInvoice(ctx, id, "")
}

func (r *repoPG) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.getInvoice(ctx, id, " FOR UPDATE")
}

func (r *repoPG) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE pharmacy_invoice
		SET subtotal=$2, tax=$3, discount=$4, total_amount=$5, nhia_coverage=$6,
			amount_paid=$7, status=$8, due_date=$9, updated_at=NOW()
		WHERE id = $1`,
		inv.ID, inv.Subtotal, inv.Tax, inv.Discount, inv.TotalAmount, inv.NHIACoverage,
		inv.AmountPaid, inv.Status, inv.DueDate)
	return err
}

func (r *repoPG) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	if _, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM pharmacy_invoice_item WHERE invoice_id = $1`, id); err != nil {
		return err
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM pharmacy_invoice WHERE id = $1`, id)
	return err
}

var invoiceSearchParams = map[string]search.ParamConfig{
	"patient_id":      {Type: search.ParamExact, Column: "patient_id"},
	"prescription_id": {Type: search.ParamExact, Column: "prescription_id"},
	"status":          {Type: search.ParamExact, Column: "status"},
}

func (r *repoPG) SearchInvoices(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	q := search.New("pharmacy_invoice", invoiceCols)
	q.ApplyParams(params, invoiceSearchParams)
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
	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, nil
}

const itemCols = `id, invoice_id, medication_id, description, quantity, unit_price, total`

func scanInvoiceItem(row pgx.Row) (*InvoiceItem, error) {
	var i InvoiceItem
	err := row.Scan(&i.ID, &i.InvoiceID, &i.MedicationID, &i.Description, &i.Quantity, &i.UnitPrice, &i.Total)
	return &i, err
}

func (r *repoPG) AddItem(ctx context.Context, item *InvoiceItem) error {
	item.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO pharmacy_invoice_item (id, invoice_id, medication_id, description, quantity, unit_price, total)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.InvoiceID, item.MedicationID, item.Description, item.Quantity, item.UnitPrice, item.Total)
	return err
}

func (r *repoPG) UpdateItem(ctx context.Context, item *InvoiceItem) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE pharmacy_invoice_item SET quantity=$2, unit_price=$3, total=$4 WHERE id = $1`,
		item.ID, item.Quantity, item.UnitPrice, item.Total)
	return err
}

func (r *repoPG) RemoveItem(ctx context.Context, id uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM pharmacy_invoice_item WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+itemCols+` FROM pharmacy_invoice_item WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InvoiceItem
	for rows.Next() {
		i, err := scanInvoiceItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, nil
}

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

const paymentCols = `id, invoice_id, amount, method, source, transaction_id, recorded_by, paid_at, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Source, &p.TransactionID,
		&p.RecordedBy, &p.PaidAt, &p.CreatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO pharmacy_payment (id, invoice_id, amount, method, source, transaction_id, recorded_by, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.Source, p.TransactionID, p.RecordedBy, p.PaidAt)
	return err
}

func (r *paymentRepoPG) GetByTransactionID(ctx context.Context, invoiceID uuid.UUID, transactionID string) (*Payment, error) {
	p, err := scanPayment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM pharmacy_payment WHERE invoice_id = $1 AND transaction_id = $2`,
		invoiceID, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+paymentCols+` FROM pharmacy_payment WHERE invoice_id = $1 ORDER BY paid_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

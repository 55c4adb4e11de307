package authorization

import (
	"context"

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

const codeCols = `id, patient_id, code, service_type, amount_cap, status, issued_by,
	issued_at, expiry_date, used_at, consumed_by_type, consumed_by_id, created_at`

func scanCode(row pgx.Row) (*Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.PatientID, &c.Code, &c.ServiceType, &c.AmountCap, &c.Status, &c.IssuedBy,
		&c.IssuedAt, &c.ExpiryDate, &c.UsedAt, &c.ConsumedByType, &c.ConsumedByID, &c.CreatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, code *Code) error {
	code.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO authorization_code (id, patient_id, code, service_type, amount_cap, status,
			issued_by, issued_at, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		code.ID, code.PatientID, code.Code, code.ServiceType, code.AmountCap, code.Status,
		code.IssuedBy, code.IssuedAt, code.ExpiryDate)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Code, error) {
	return scanCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeCols+` FROM authorization_code WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Code, error) {
	return scanCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeCols+` FROM authorization_code WHERE code = $1`, code))
}

func (r *repoPG) GetByCodeForUpdate(ctx context.Context, code string) (*Code, error) {
	return scanCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeCols+` FROM authorization_code WHERE code = $1 FOR UPDATE`, code))
}

func (r *repoPG) Update(ctx context.Context, code *Code) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE authorization_code
		SET status=$2, used_at=$3, consumed_by_type=$4, consumed_by_id=$5, expiry_date=$6
		WHERE id = $1`,
		code.ID, code.Status, code.UsedAt, code.ConsumedByType, code.ConsumedByID, code.ExpiryDate)
	return err
}

var codeSearchParams = map[string]search.ParamConfig{
	"patient_id":   {Type: search.ParamExact, Column: "patient_id"},
	"service_type": {Type: search.ParamExact, Column: "service_type"},
	"status":       {Type: search.ParamExact, Column: "status"},
	"issued_by":    {Type: search.ParamExact, Column: "issued_by"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Code, int, error) {
	q := search.New("authorization_code", codeCols)
	q.ApplyParams(params, codeSearchParams)
	q.OrderBy("issued_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var codes []*Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, 0, err
		}
		codes = append(codes, c)
	}
	return codes, total, nil
}

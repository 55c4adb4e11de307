package patient

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

const patientCols = `id, first_name, last_name, gender, date_of_birth, phone, email,
	address, patient_type, is_active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Gender, &p.DateOfBirth, &p.Phone, &p.Email,
		&p.Address, &p.PatientType, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, first_name, last_name, gender, date_of_birth, phone, email,
			address, patient_type, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.FirstName, p.LastName, p.Gender, p.DateOfBirth, p.Phone, p.Email,
		p.Address, p.PatientType, p.IsActive)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	profile, err := r.GetNHIAProfile(ctx, id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	p.NHIAProfile = profile
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, gender=$4, date_of_birth=$5,
			phone=$6, email=$7, address=$8, patient_type=$9, is_active=$10, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Gender, p.DateOfBirth,
		p.Phone, p.Email, p.Address, p.PatientType, p.IsActive)
	return err
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE patient SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	return err
}

var patientSearchParams = map[string]search.ParamConfig{
	"first_name":   {Type: search.ParamString, Column: "first_name"},
	"last_name":    {Type: search.ParamString, Column: "last_name"},
	"phone":        {Type: search.ParamString, Column: "phone"},
	"patient_type": {Type: search.ParamExact, Column: "patient_type"},
	"is_active":    {Type: search.ParamBool, Column: "is_active"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	q := search.New("patient", patientCols)
	q.ApplyParams(params, patientSearchParams)
	q.OrderBy("last_name ASC, first_name ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) GetNHIAProfile(ctx context.Context, patientID uuid.UUID) (*NHIAProfile, error) {
	var n NHIAProfile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, nhia_reg_number, is_active, created_at
		FROM nhia_profile WHERE patient_id = $1`, patientID).
		Scan(&n.ID, &n.PatientID, &n.NHIARegNumber, &n.IsActive, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) UpsertNHIAProfile(ctx context.Context, profile *NHIAProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO nhia_profile (id, patient_id, nhia_reg_number, is_active)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (patient_id) DO UPDATE
		SET nhia_reg_number = EXCLUDED.nhia_reg_number, is_active = EXCLUDED.is_active`,
		profile.ID, profile.PatientID, profile.NHIARegNumber, profile.IsActive)
	return err
}

// -- Wallet --

type walletRepoPG struct{ pool *pgxpool.Pool }

func NewWalletRepoPG(pool *pgxpool.Pool) WalletRepository {
	return &walletRepoPG{pool: pool}
}

func (r *walletRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *walletRepoPG) Create(ctx context.Context, w *Wallet) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO wallet (id, patient_id, balance) VALUES ($1,$2,$3)`,
		w.ID, w.PatientID, w.Balance)
	return err
}

const walletCols = `id, patient_id, balance, created_at, updated_at`

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.PatientID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	return &w, err
}

func (r *walletRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return scanWallet(r.conn(ctx).QueryRow(ctx, `SELECT `+walletCols+` FROM wallet WHERE id = $1`, id))
}

func (r *walletRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Wallet, error) {
	return scanWallet(r.conn(ctx).QueryRow(ctx, `SELECT `+walletCols+` FROM wallet WHERE patient_id = $1`, patientID))
}

func (r *walletRepoPG) AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE wallet SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance`, walletID, delta).Scan(&balance)
	return balance, err
}

func (r *walletRepoPG) AddTransaction(ctx context.Context, tx *WalletTransaction) error {
	tx.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO wallet_transaction (id, wallet_id, amount, kind, balance_after,
			reference_type, reference_id, related_transaction_id, description, performed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tx.ID, tx.WalletID, tx.Amount, tx.Kind, tx.BalanceAfter,
		tx.ReferenceType, tx.ReferenceID, tx.RelatedTransactionID, tx.Description, tx.PerformedBy)
	return err
}

func (r *walletRepoPG) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*WalletTransaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM wallet_transaction WHERE wallet_id = $1`, walletID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, wallet_id, amount, kind, balance_after, reference_type, reference_id,
			related_transaction_id, description, performed_by, created_at
		FROM wallet_transaction
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, walletID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*WalletTransaction
	for rows.Next() {
		var t WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Kind, &t.BalanceAfter,
			&t.ReferenceType, &t.ReferenceID, &t.RelatedTransactionID,
			&t.Description, &t.PerformedBy, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &t)
	}
	return items, total, nil
}

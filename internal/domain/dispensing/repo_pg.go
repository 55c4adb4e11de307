package dispensing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
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

const logCols = `id, prescription_item_id, cart_item_id, medication_id, dispensary_id,
	batch_number, quantity, unit_price, total, dispensed_by, dispensed_at`

func scanLog(row pgx.Row) (*Log, error) {
	var l Log
	err := row.Scan(&l.ID, &l.PrescriptionItemID, &l.CartItemID, &l.MedicationID, &l.DispensaryID,
		&l.BatchNumber, &l.Quantity, &l.UnitPrice, &l.Total, &l.DispensedBy, &l.DispensedAt)
	return &l, err
}

func (r *repoPG) Create(ctx context.Context, log *Log) error {
	log.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dispensing_log (id, prescription_item_id, cart_item_id, medication_id,
			dispensary_id, batch_number, quantity, unit_price, total, dispensed_by, dispensed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		log.ID, log.PrescriptionItemID, log.CartItemID, log.MedicationID,
		log.DispensaryID, log.BatchNumber, log.Quantity, log.UnitPrice, log.Total,
		log.DispensedBy, log.DispensedAt)
	return err
}

func (r *repoPG) ListByPrescriptionItem(ctx context.Context, prescriptionItemID uuid.UUID) ([]*Log, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM dispensing_log
		WHERE prescription_item_id = $1 ORDER BY dispensed_at`, prescriptionItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (r *repoPG) ListByDispensary(ctx context.Context, dispensaryID uuid.UUID, limit, offset int) ([]*Log, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM dispensing_log WHERE dispensary_id = $1`, dispensaryID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM dispensing_log
		WHERE dispensary_id = $1 ORDER BY dispensed_at DESC LIMIT $2 OFFSET $3`,
		dispensaryID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var logs []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	return logs, total, nil
}

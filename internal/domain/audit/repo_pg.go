package audit

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

const logCols = `id, actor_id, actor_name, entity_type, entity_id, action,
	before_hash, after_hash, detail, outcome, ip_address, request_id, recorded_at`

func scanLog(row pgx.Row) (*Log, error) {
	var l Log
	err := row.Scan(&l.ID, &l.ActorID, &l.ActorName, &l.EntityType, &l.EntityID,
		&l.Action, &l.BeforeHash, &l.AfterHash, &l.Detail, &l.Outcome,
		&l.IPAddress, &l.RequestID, &l.RecordedAt)
	return &l, err
}

func (r *repoPG) Create(ctx context.Context, l *Log) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, actor_name, entity_type, entity_id, action,
			before_hash, after_hash, detail, outcome, ip_address, request_id, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		l.ID, l.ActorID, l.ActorName, l.EntityType, l.EntityID, l.Action,
		l.BeforeHash, l.AfterHash, l.Detail, l.Outcome, l.IPAddress, l.RequestID, l.RecordedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Log, error) {
	return scanLog(r.conn(ctx).QueryRow(ctx,
		`SELECT `+logCols+` FROM audit_log WHERE id = $1`, id))
}

func (r *repoPG) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*Log, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY recorded_at ASC`, entityType, entityID)
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

var logSearchParams = map[string]search.ParamConfig{
	"actor_id":    {Type: search.ParamExact, Column: "actor_id"},
	"entity_type": {Type: search.ParamExact, Column: "entity_type"},
	"entity_id":   {Type: search.ParamExact, Column: "entity_id"},
	"action":      {Type: search.ParamExact, Column: "action"},
	"outcome":     {Type: search.ParamExact, Column: "outcome"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Log, int, error) {
	q := search.New("audit_log", logCols)
	q.ApplyParams(params, logSearchParams)
	q.OrderBy("recorded_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
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

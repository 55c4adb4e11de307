package referral

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

const referralCols = `id, patient_id, referring_clinician_id, referring_department, referral_type,
	target_department, target_specialty, target_unit, assigned_clinician_id, reason, status,
	rejection_reason, requires_authorization, authorization_status, authorization_code_id,
	created_at, updated_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.PatientID, &ref.ReferringClinicianID, &ref.ReferringDepartment,
		&ref.ReferralType, &ref.TargetDepartment, &ref.TargetSpecialty, &ref.TargetUnit,
		&ref.AssignedClinicianID, &ref.Reason, &ref.Status, &ref.RejectionReason,
		&ref.RequiresAuthorization, &ref.AuthorizationStatus, &ref.AuthorizationCodeID,
		&ref.CreatedAt, &ref.UpdatedAt)
	return &ref, err
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral (id, patient_id, referring_clinician_id, referring_department,
			referral_type, target_department, target_specialty, target_unit, assigned_clinician_id,
			reason, status, rejection_reason, requires_authorization, authorization_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		ref.ID, ref.PatientID, ref.ReferringClinicianID, ref.ReferringDepartment,
		ref.ReferralType, ref.TargetDepartment, ref.TargetSpecialty, ref.TargetUnit,
		ref.AssignedClinicianID, ref.Reason, ref.Status, ref.RejectionReason,
		ref.RequiresAuthorization, ref.AuthorizationStatus)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referralCols+` FROM referral WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, ref *Referral) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral
		SET target_department=$2, target_specialty=$3, target_unit=$4, assigned_clinician_id=$5,
			status=$6, rejection_reason=$7, requires_authorization=$8, authorization_status=$9,
			authorization_code_id=$10, updated_at=NOW()
		WHERE id = $1`,
		ref.ID, ref.TargetDepartment, ref.TargetSpecialty, ref.TargetUnit, ref.AssignedClinicianID,
		ref.Status, ref.RejectionReason, ref.RequiresAuthorization, ref.AuthorizationStatus,
		ref.AuthorizationCodeID)
	return err
}

var referralSearchParams = map[string]search.ParamConfig{
	"patient_id":             {Type: search.ParamExact, Column: "patient_id"},
	"referring_clinician_id": {Type: search.ParamExact, Column: "referring_clinician_id"},
	"target_department":      {Type: search.ParamExact, Column: "target_department"},
	"status":                 {Type: search.ParamExact, Column: "status"},
	"authorization_status":   {Type: search.ParamExact, Column: "authorization_status"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Referral, int, error) {
	q := search.New("referral", referralCols)
	q.ApplyParams(params, referralSearchParams)
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
	var referrals []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		referrals = append(referrals, ref)
	}
	return referrals, total, nil
}

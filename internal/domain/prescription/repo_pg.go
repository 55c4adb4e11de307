package prescription

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

const prescriptionCols = `id, patient_id, clinician_id, clinician_department, date, diagnosis,
	prescription_type, status, payment_status, authorization_required, authorization_status,
	authorization_code_id, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.ClinicianID, &p.ClinicianDepartment, &p.Date, &p.Diagnosis,
		&p.PrescriptionType, &p.Status, &p.PaymentStatus, &p.AuthorizationRequired, &p.AuthorizationStatus,
		&p.AuthorizationCodeID, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, patient_id, clinician_id, clinician_department, date, diagnosis,
			prescription_type, status, payment_status, authorization_required, authorization_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.PatientID, p.ClinicianID, p.ClinicianDepartment, p.Date, p.Diagnosis,
		p.PrescriptionType, p.Status, p.PaymentStatus, p.AuthorizationRequired, p.AuthorizationStatus)
	if err != nil {
		return err
	}
	for _, item := range p.Items {
		item.PrescriptionID = p.ID
		if err := r.AddItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	p.Items, err = r.ListItems(ctx, id)
	return p, err
}

func (r *repoPG) Update(ctx context.Context, p *Prescription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription
		SET diagnosis=$2, prescription_type=$3, status=$4, payment_status=$5,
			authorization_required=$6, authorization_status=$7, authorization_code_id=$8,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Diagnosis, p.PrescriptionType, p.Status, p.PaymentStatus,
		p.AuthorizationRequired, p.AuthorizationStatus, p.AuthorizationCodeID)
	return err
}

var prescriptionSearchParams = map[string]search.ParamConfig{
	"patient_id":           {Type: search.ParamExact, Column: "patient_id"},
	"clinician_id":         {Type: search.ParamExact, Column: "clinician_id"},
	"status":               {Type: search.ParamExact, Column: "status"},
	"payment_status":       {Type: search.ParamExact, Column: "payment_status"},
	"authorization_status": {Type: search.ParamExact, Column: "authorization_status"},
	"prescription_type":    {Type: search.ParamExact, Column: "prescription_type"},
	"date":                 {Type: search.ParamDate, Column: "date"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	q := search.New("prescription", prescriptionCols)
	q.ApplyParams(params, prescriptionSearchParams)
	q.OrderBy("date DESC, created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

const itemCols = `id, prescription_id, medication_id, quantity_prescribed, quantity_dispensed,
	dosage, frequency, duration, instructions, is_dispensed, dispensed_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.PrescriptionID, &i.MedicationID, &i.QuantityPrescribed, &i.QuantityDispensed,
		&i.Dosage, &i.Frequency, &i.Duration, &i.Instructions, &i.IsDispensed, &i.DispensedAt)
	return &i, err
}

func (r *repoPG) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM prescription_item WHERE id = $1`, id))
}

func (r *repoPG) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM prescription_item WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) AddItem(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_item (id, prescription_id, medication_id, quantity_prescribed,
			quantity_dispensed, dosage, frequency, duration, instructions, is_dispensed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		item.ID, item.PrescriptionID, item.MedicationID, item.QuantityPrescribed,
		item.QuantityDispensed, item.Dosage, item.Frequency, item.Duration,
		item.Instructions, item.IsDispensed)
	return err
}

func (r *repoPG) UpdateItem(ctx context.Context, item *Item) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_item
		SET quantity_prescribed=$2, quantity_dispensed=$3, dosage=$4, frequency=$5,
			duration=$6, instructions=$7, is_dispensed=$8, dispensed_at=$9
		WHERE id = $1`,
		item.ID, item.QuantityPrescribed, item.QuantityDispensed, item.Dosage, item.Frequency,
		item.Duration, item.Instructions, item.IsDispensed, item.DispensedAt)
	return err
}

func (r *repoPG) ListItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+itemCols+` FROM prescription_item WHERE prescription_id = $1
		ORDER BY id`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, nil
}

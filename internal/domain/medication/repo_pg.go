package medication

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

// =========== Medication Repository ===========

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

const medCols = `id, name, generic_name, category_id, dosage_form, strength,
	manufacturer, unit_price, reorder_level, is_active, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.CategoryID, &m.DosageForm, &m.Strength,
		&m.Manufacturer, &m.UnitPrice, &m.ReorderLevel, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication (id, name, generic_name, category_id, dosage_form, strength,
			manufacturer, unit_price, reorder_level, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.Name, m.GenericName, m.CategoryID, m.DosageForm, m.Strength,
		m.Manufacturer, m.UnitPrice, m.ReorderLevel, m.IsActive)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medication WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, m *Medication) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication SET name=$2, generic_name=$3, category_id=$4, dosage_form=$5,
			strength=$6, manufacturer=$7, unit_price=$8, reorder_level=$9, is_active=$10,
			updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.GenericName, m.CategoryID, m.DosageForm,
		m.Strength, m.Manufacturer, m.UnitPrice, m.ReorderLevel, m.IsActive)
	return err
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE medication SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	return err
}

var medicationSearchParams = map[string]search.ParamConfig{
	"name":         {Type: search.ParamString, Column: "name"},
	"generic_name": {Type: search.ParamString, Column: "generic_name"},
	"category_id":  {Type: search.ParamExact, Column: "category_id"},
	"dosage_form":  {Type: search.ParamExact, Column: "dosage_form"},
	"is_active":    {Type: search.ParamBool, Column: "is_active"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medication, int, error) {
	q := search.New("medication", medCols)
	q.ApplyParams(params, medicationSearchParams)
	q.OrderBy("name ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}

func (r *repoPG) ListAlternatives(ctx context.Context, id uuid.UUID) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medCols+` FROM medication
		WHERE id <> $1 AND is_active = true
		  AND (name = (SELECT name FROM medication WHERE id = $1)
		       OR (generic_name <> '' AND generic_name = (SELECT generic_name FROM medication WHERE id = $1)))
		ORDER BY name ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}

// =========== Category Repository ===========

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepoPG{pool: pool}
}

func (r *categoryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *categoryRepoPG) Create(ctx context.Context, c *Category) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_category (id, name, description, is_active)
		VALUES ($1,$2,$3,$4)`,
		c.ID, c.Name, c.Description, c.IsActive)
	return err
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	var c Category
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM medication_category WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt)
	return &c, err
}

func (r *categoryRepoPG) Update(ctx context.Context, c *Category) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication_category SET name=$2, description=$3, is_active=$4 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.IsActive)
	return err
}

func (r *categoryRepoPG) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM medication_category ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, nil
}

// =========== Supplier Repository ===========

type supplierRepoPG struct{ pool *pgxpool.Pool }

func NewSupplierRepoPG(pool *pgxpool.Pool) SupplierRepository {
	return &supplierRepoPG{pool: pool}
}

func (r *supplierRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const supplierCols = `id, name, contact_person, phone, email, address, is_active, created_at, updated_at`

func scanSupplier(row pgx.Row) (*Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Phone, &s.Email, &s.Address,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *supplierRepoPG) Create(ctx context.Context, s *Supplier) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO supplier (id, name, contact_person, phone, email, address, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.Name, s.ContactPerson, s.Phone, s.Email, s.Address, s.IsActive)
	return err
}

func (r *supplierRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	return scanSupplier(r.conn(ctx).QueryRow(ctx, `SELECT `+supplierCols+` FROM supplier WHERE id = $1`, id))
}

func (r *supplierRepoPG) Update(ctx context.Context, s *Supplier) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE supplier SET name=$2, contact_person=$3, phone=$4, email=$5, address=$6,
			is_active=$7, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.ContactPerson, s.Phone, s.Email, s.Address, s.IsActive)
	return err
}

func (r *supplierRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE supplier SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	return err
}

var supplierSearchParams = map[string]search.ParamConfig{
	"name":      {Type: search.ParamString, Column: "name"},
	"is_active": {Type: search.ParamBool, Column: "is_active"},
}

func (r *supplierRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Supplier, int, error) {
	q := search.New("supplier", supplierCols)
	q.ApplyParams(params, supplierSearchParams)
	q.OrderBy("name ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

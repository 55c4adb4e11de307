package medication

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/apperror"
)

type Service struct {
	medications Repository
	categories  CategoryRepository
	suppliers   SupplierRepository
}

func NewService(meds Repository, cats CategoryRepository, sups SupplierRepository) *Service {
	return &Service{
		medications: meds,
		categories:  cats,
		suppliers:   sups,
	}
}

// -- Medication --

var validDosageForms = map[string]bool{
	"tablet": true, "capsule": true, "syrup": true, "suspension": true,
	"injection": true, "infusion": true, "cream": true, "ointment": true,
	"drops": true, "inhaler": true, "suppository": true, "patch": true,
}

func (s *Service) CreateMedication(ctx context.Context, m *Medication) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.UnitPrice < 0 {
		return fmt.Errorf("unit_price must not be negative: %w", apperror.ErrInvalidAmount)
	}
	if m.DosageForm != "" && !validDosageForms[m.DosageForm] {
		return fmt.Errorf("invalid dosage_form: %s", m.DosageForm)
	}
	if m.ReorderLevel < 0 {
		m.ReorderLevel = 0
	}
	m.IsActive = true
	return s.medications.Create(ctx, m)
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.medications.GetByID(ctx, id)
}

func (s *Service) UpdateMedication(ctx context.Context, m *Medication) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.UnitPrice < 0 {
		return fmt.Errorf("unit_price must not be negative: %w", apperror.ErrInvalidAmount)
	}
	if m.DosageForm != "" && !validDosageForms[m.DosageForm] {
		return fmt.Errorf("invalid dosage_form: %s", m.DosageForm)
	}
	return s.medications.Update(ctx, m)
}

func (s *Service) DeactivateMedication(ctx context.Context, id uuid.UUID) error {
	return s.medications.Deactivate(ctx, id)
}

func (s *Service) SearchMedications(ctx context.Context, params map[string]string, limit, offset int) ([]*Medication, int, error) {
	return s.medications.Search(ctx, params, limit, offset)
}

// ListAlternatives returns active medications interchangeable with the given
// one. Substitution candidates during dispensing come from this list.
func (s *Service) ListAlternatives(ctx context.Context, id uuid.UUID) ([]*Medication, error) {
	if _, err := s.medications.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("medication %s: %w", id, apperror.ErrNotFound)
	}
	return s.medications.ListAlternatives(ctx, id)
}

// -- Category --

func (s *Service) CreateCategory(ctx context.Context, c *Category) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	c.IsActive = true
	return s.categories.Create(ctx, c)
}

func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	return s.categories.GetByID(ctx, id)
}

func (s *Service) UpdateCategory(ctx context.Context, c *Category) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.categories.Update(ctx, c)
}

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.categories.List(ctx)
}

// -- Supplier --

func (s *Service) CreateSupplier(ctx context.Context, sup *Supplier) error {
	if sup.Name == "" {
		return fmt.Errorf("name is required")
	}
	sup.IsActive = true
	return s.suppliers.Create(ctx, sup)
}

func (s *Service) GetSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	return s.suppliers.GetByID(ctx, id)
}

func (s *Service) UpdateSupplier(ctx context.Context, sup *Supplier) error {
	if sup.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.suppliers.Update(ctx, sup)
}

func (s *Service) DeactivateSupplier(ctx context.Context, id uuid.UUID) error {
	return s.suppliers.Deactivate(ctx, id)
}

func (s *Service) SearchSuppliers(ctx context.Context, params map[string]string, limit, offset int) ([]*Supplier, int, error) {
	return s.suppliers.Search(ctx, params, limit, offset)
}

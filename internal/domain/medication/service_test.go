package medication

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/apperror"
)

// -- Mock Repositories --

type mockMedRepo struct {
	meds map[uuid.UUID]*Medication
}

func newMockMedRepo() *mockMedRepo {
	return &mockMedRepo{meds: make(map[uuid.UUID]*Medication)}
}

func (m *mockMedRepo) Create(_ context.Context, med *Medication) error {
	med.ID = uuid.New()
	med.CreatedAt = time.Now()
	med.UpdatedAt = time.Now()
	m.meds[med.ID] = med
	return nil
}

func (m *mockMedRepo) GetByID(_ context.Context, id uuid.UUID) (*Medication, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return med, nil
}

func (m *mockMedRepo) Update(_ context.Context, med *Medication) error {
	if _, ok := m.meds[med.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.meds[med.ID] = med
	return nil
}

func (m *mockMedRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	med, ok := m.meds[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	med.IsActive = false
	return nil
}

func (m *mockMedRepo) Search(_ context.Context, _ map[string]string, limit, offset int) ([]*Medication, int, error) {
	var result []*Medication
	for _, med := range m.meds {
		result = append(result, med)
	}
	total := len(result)
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (m *mockMedRepo) ListAlternatives(_ context.Context, id uuid.UUID) ([]*Medication, error) {
	self, ok := m.meds[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	var result []*Medication
	for _, med := range m.meds {
		if med.ID == id || !med.IsActive {
			continue
		}
		if med.Name == self.Name || (med.GenericName != "" && med.GenericName == self.GenericName) {
			result = append(result, med)
		}
	}
	return result, nil
}

type mockCategoryRepo struct {
	cats map[uuid.UUID]*Category
}

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{cats: make(map[uuid.UUID]*Category)}
}

func (m *mockCategoryRepo) Create(_ context.Context, c *Category) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.cats[c.ID] = c
	return nil
}

func (m *mockCategoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Category, error) {
	c, ok := m.cats[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (m *mockCategoryRepo) Update(_ context.Context, c *Category) error {
	if _, ok := m.cats[c.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.cats[c.ID] = c
	return nil
}

func (m *mockCategoryRepo) List(_ context.Context) ([]*Category, error) {
	var result []*Category
	for _, c := range m.cats {
		result = append(result, c)
	}
	return result, nil
}

type mockSupplierRepo struct {
	sups map[uuid.UUID]*Supplier
}

func newMockSupplierRepo() *mockSupplierRepo {
	return &mockSupplierRepo{sups: make(map[uuid.UUID]*Supplier)}
}

func (m *mockSupplierRepo) Create(_ context.Context, s *Supplier) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.sups[s.ID] = s
	return nil
}

func (m *mockSupplierRepo) GetByID(_ context.Context, id uuid.UUID) (*Supplier, error) {
	s, ok := m.sups[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return s, nil
}

func (m *mockSupplierRepo) Update(_ context.Context, s *Supplier) error {
	if _, ok := m.sups[s.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.sups[s.ID] = s
	return nil
}

func (m *mockSupplierRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	s, ok := m.sups[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	s.IsActive = false
	return nil
}

func (m *mockSupplierRepo) Search(_ context.Context, _ map[string]string, limit, offset int) ([]*Supplier, int, error) {
	var result []*Supplier
	for _, s := range m.sups {
		result = append(result, s)
	}
	return result, len(result), nil
}

func newTestService() (*Service, *mockMedRepo, *mockCategoryRepo, *mockSupplierRepo) {
	meds := newMockMedRepo()
	cats := newMockCategoryRepo()
	sups := newMockSupplierRepo()
	return NewService(meds, cats, sups), meds, cats, sups
}

// -- Medication Tests --

func TestCreateMedication(t *testing.T) {
	svc, _, _, _ := newTestService()

	m := &Medication{Name: "Paracetamol", GenericName: "paracetamol", DosageForm: "tablet", Strength: "500mg", UnitPrice: 5000}
	if err := svc.CreateMedication(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if !m.IsActive {
		t.Error("expected new medication to be active")
	}
}

func TestCreateMedication_RequiresName(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.CreateMedication(context.Background(), &Medication{UnitPrice: 100})
	if err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestCreateMedication_NegativePrice(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.CreateMedication(context.Background(), &Medication{Name: "Amoxicillin", UnitPrice: -1})
	if err == nil {
		t.Fatal("expected error for negative unit price")
	}
	if !errors.Is(err, apperror.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCreateMedication_InvalidDosageForm(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.CreateMedication(context.Background(), &Medication{Name: "Amoxicillin", DosageForm: "vapor"})
	if err == nil {
		t.Fatal("expected error for invalid dosage form")
	}
}

func TestUpdateMedication(t *testing.T) {
	svc, _, _, _ := newTestService()

	m := &Medication{Name: "Ibuprofen", DosageForm: "tablet", UnitPrice: 8000}
	if err := svc.CreateMedication(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}

	m.UnitPrice = 9000
	if err := svc.UpdateMedication(context.Background(), m); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.GetMedication(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UnitPrice != 9000 {
		t.Errorf("expected price 9000, got %d", got.UnitPrice)
	}
}

func TestDeactivateMedication(t *testing.T) {
	svc, repo, _, _ := newTestService()

	m := &Medication{Name: "Ibuprofen", UnitPrice: 8000}
	if err := svc.CreateMedication(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeactivateMedication(context.Background(), m.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if repo.meds[m.ID].IsActive {
		t.Error("expected medication to be inactive")
	}
}

func TestListAlternatives(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	branded := &Medication{Name: "Panadol", GenericName: "paracetamol", UnitPrice: 12000}
	generic := &Medication{Name: "Paracetamol", GenericName: "paracetamol", UnitPrice: 5000}
	unrelated := &Medication{Name: "Amoxicillin", GenericName: "amoxicillin", UnitPrice: 9000}
	for _, m := range []*Medication{branded, generic, unrelated} {
		if err := svc.CreateMedication(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	alts, err := svc.ListAlternatives(ctx, branded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alts) != 1 {
		t.Fatalf("expected 1 alternative, got %d", len(alts))
	}
	if alts[0].ID != generic.ID {
		t.Errorf("expected generic equivalent, got %s", alts[0].Name)
	}
}

func TestListAlternatives_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.ListAlternatives(context.Background(), uuid.New())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// -- Category Tests --

func TestCreateCategory(t *testing.T) {
	svc, _, _, _ := newTestService()

	c := &Category{Name: "Analgesics"}
	if err := svc.CreateCategory(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsActive {
		t.Error("expected new category to be active")
	}

	if err := svc.CreateCategory(context.Background(), &Category{}); err == nil {
		t.Error("expected error for missing name")
	}
}

// -- Supplier Tests --

func TestCreateSupplier(t *testing.T) {
	svc, _, _, _ := newTestService()

	s := &Supplier{Name: "MedSupply Ltd", Phone: "+2348012345678"}
	if err := svc.CreateSupplier(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsActive {
		t.Error("expected new supplier to be active")
	}

	if err := svc.CreateSupplier(context.Background(), &Supplier{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestDeactivateSupplier(t *testing.T) {
	svc, _, _, sups := newTestService()

	s := &Supplier{Name: "MedSupply Ltd"}
	if err := svc.CreateSupplier(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeactivateSupplier(context.Background(), s.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if sups.sups[s.ID].IsActive {
		t.Error("expected supplier to be inactive")
	}
}

package dispensing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/cart"
	"github.com/hms/hms/internal/domain/inventory"
	"github.com/hms/hms/internal/domain/medication"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/pkg/apperror"
)

type batch struct {
	number string
	expiry time.Time
	qty    int
}

type mockLogRepo struct {
	logs []*Log
}

func (m *mockLogRepo) Create(_ context.Context, log *Log) error {
	log.ID = uuid.New()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockLogRepo) ListByPrescriptionItem(_ context.Context, id uuid.UUID) ([]*Log, error) {
	var result []*Log
	for _, l := range m.logs {
		if l.PrescriptionItemID == id {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *mockLogRepo) ListByDispensary(_ context.Context, id uuid.UUID, _, _ int) ([]*Log, int, error) {
	var result []*Log
	for _, l := range m.logs {
		if l.DispensaryID == id {
			result = append(result, l)
		}
	}
	return result, len(result), nil
}

type mockCartAccess struct {
	carts map[uuid.UUID]*cart.Cart
	items map[uuid.UUID]*cart.CartItem
}

func (m *mockCartAccess) GetByIDForUpdate(_ context.Context, id uuid.UUID) (*cart.Cart, error) {
	c, ok := m.carts[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (m *mockCartAccess) GetItemForUpdate(_ context.Context, id uuid.UUID) (*cart.CartItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return item, nil
}

func (m *mockCartAccess) UpdateItem(_ context.Context, item *cart.CartItem) error {
	m.items[item.ID] = item
	return nil
}

type mockCartLifecycle struct {
	env    *testEnv
	allow  bool
	reason string
}

func (m *mockCartLifecycle) CanCompleteDispensing(_ context.Context, _ uuid.UUID) (bool, string, error) {
	return m.allow, m.reason, nil
}

func (m *mockCartLifecycle) RecomputeStatus(_ context.Context, cartID uuid.UUID) error {
	c := m.env.carts.carts[cartID]
	all := true
	any := false
	for _, item := range m.env.carts.items {
		if item.CartID != cartID {
			continue
		}
		if item.RemainingInCart() > 0 {
			all = false
		}
		if item.QuantityDispensed > 0 {
			any = true
		}
	}
	switch {
	case all:
		c.Status = cart.CartCompleted
	case any:
		c.Status = cart.CartPartiallyDispensed
	}
	return nil
}

type mockPrescriptionAccess struct {
	prescriptions map[uuid.UUID]*prescription.Prescription
	items         map[uuid.UUID]*prescription.Item
}

func (m *mockPrescriptionAccess) Get(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPrescriptionAccess) RecordDispense(_ context.Context, itemID uuid.UUID, quantity int) (*prescription.Item, error) {
	item, ok := m.items[itemID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	item.QuantityDispensed += quantity
	if item.QuantityDispensed > item.QuantityPrescribed {
		item.QuantityDispensed = item.QuantityPrescribed
	}
	if item.QuantityDispensed >= item.QuantityPrescribed && !item.IsDispensed {
		item.IsDispensed = true
		now := time.Now()
		item.DispensedAt = &now
	}
	p := m.prescriptions[item.PrescriptionID]
	all := true
	any := false
	for _, it := range m.items {
		if it.PrescriptionID != p.ID {
			continue
		}
		if !it.IsDispensed {
			all = false
		}
		if it.QuantityDispensed > 0 {
			any = true
		}
	}
	switch {
	case all:
		p.Status = prescription.StatusDispensed
	case any:
		p.Status = prescription.StatusPartiallyDispensed
	}
	return item, nil
}

type mockStock struct {
	dispensaries map[uuid.UUID]*inventory.Dispensary
	batches      map[uuid.UUID][]*batch
}

func (m *mockStock) GetDispensary(_ context.Context, id uuid.UUID) (*inventory.Dispensary, error) {
	d, ok := m.dispensaries[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return d, nil
}

func (m *mockStock) Deduct(_ context.Context, _, medicationID uuid.UUID, quantity int) ([]inventory.BatchDeduction, error) {
	batches := m.batches[medicationID]
	sort.Slice(batches, func(i, j int) bool { return batches[i].expiry.Before(batches[j].expiry) })
	available := 0
	for _, b := range batches {
		available += b.qty
	}
	if available < quantity {
		return nil, fmt.Errorf("only %d available: %w", available, apperror.ErrInsufficientStock)
	}
	var out []inventory.BatchDeduction
	remaining := quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.qty
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		b.qty -= take
		remaining -= take
		out = append(out, inventory.BatchDeduction{BatchNumber: b.number, Quantity: take, ExpiryDate: b.expiry})
	}
	return out, nil
}

type mockCatalog struct {
	meds map[uuid.UUID]*medication.Medication
}

func (m *mockCatalog) GetMedication(_ context.Context, id uuid.UUID) (*medication.Medication, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return med, nil
}

type mockPatients struct {
	patients map[uuid.UUID]*patient.Patient
}

func (m *mockPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

type mockNotifier struct {
	dispensed int
}

func (m *mockNotifier) NotifyPrescriptionDispensed(_ context.Context, _, _, _, _ string) {
	m.dispensed++
}

type mockAuditor struct {
	actions []string
}

func (m *mockAuditor) RecordAction(_ context.Context, _, _ string, _ uuid.UUID, action, _ string) error {
	m.actions = append(m.actions, action)
	return nil
}

type testEnv struct {
	svc           *Service
	logs          *mockLogRepo
	carts         *mockCartAccess
	lifecycle     *mockCartLifecycle
	prescriptions *mockPrescriptionAccess
	stock         *mockStock
	catalog       *mockCatalog
	patients      *mockPatients
	notifier      *mockNotifier
	auditor       *mockAuditor

	dispensaryID uuid.UUID
}

// snapshotTx mimics transactional rollback over the in-memory state.
func (env *testEnv) snapshotTx(ctx context.Context, fn func(ctx context.Context) error) error {
	cartItems := make(map[uuid.UUID]*cart.CartItem, len(env.carts.items))
	for id, item := range env.carts.items {
		cp := *item
		cartItems[id] = &cp
	}
	pItems := make(map[uuid.UUID]*prescription.Item, len(env.prescriptions.items))
	for id, item := range env.prescriptions.items {
		cp := *item
		pItems[id] = &cp
	}
	statuses := make(map[uuid.UUID]string)
	for id, p := range env.prescriptions.prescriptions {
		statuses[id] = p.Status
	}
	batches := make(map[uuid.UUID][]*batch)
	for id, bs := range env.stock.batches {
		for _, b := range bs {
			cp := *b
			batches[id] = append(batches[id], &cp)
		}
	}
	logCount := len(env.logs.logs)

	if err := fn(ctx); err != nil {
		env.carts.items = cartItems
		env.prescriptions.items = pItems
		for id, status := range statuses {
			env.prescriptions.prescriptions[id].Status = status
		}
		env.stock.batches = batches
		env.logs.logs = env.logs.logs[:logCount]
		return err
	}
	return nil
}

func newTestEnv() *testEnv {
	env := &testEnv{
		logs:          &mockLogRepo{},
		carts:         &mockCartAccess{carts: make(map[uuid.UUID]*cart.Cart), items: make(map[uuid.UUID]*cart.CartItem)},
		prescriptions: &mockPrescriptionAccess{prescriptions: make(map[uuid.UUID]*prescription.Prescription), items: make(map[uuid.UUID]*prescription.Item)},
		stock:         &mockStock{dispensaries: make(map[uuid.UUID]*inventory.Dispensary), batches: make(map[uuid.UUID][]*batch)},
		catalog:       &mockCatalog{meds: make(map[uuid.UUID]*medication.Medication)},
		patients:      &mockPatients{patients: make(map[uuid.UUID]*patient.Patient)},
		notifier:      &mockNotifier{},
		auditor:       &mockAuditor{},
		dispensaryID:  uuid.New(),
	}
	env.lifecycle = &mockCartLifecycle{env: env, allow: true}
	env.stock.dispensaries[env.dispensaryID] = &inventory.Dispensary{ID: env.dispensaryID, Name: "Main Pharmacy"}
	env.svc = NewService(env.logs, env.carts, env.lifecycle, env.prescriptions,
		env.stock, env.catalog, env.patients, env.notifier, env.auditor, env.snapshotTx)
	return env
}

func (env *testEnv) addMedication(name string, price int64, batches ...*batch) *medication.Medication {
	med := &medication.Medication{ID: uuid.New(), Name: name, UnitPrice: price, IsActive: true}
	env.catalog.meds[med.ID] = med
	env.stock.batches[med.ID] = batches
	return med
}

// paidCart builds a paid cart over one prescription with the given
// medications and quantities, cart quantity == prescribed unless overridden.
func (env *testEnv) paidCart(meds []*medication.Medication, prescribed, requested []int) (*cart.Cart, []*cart.CartItem) {
	pt := &patient.Patient{ID: uuid.New(), FirstName: "Ada", LastName: "Obi", PatientType: patient.TypeRegular}
	env.patients.patients[pt.ID] = pt

	p := &prescription.Prescription{
		ID: uuid.New(), PatientID: pt.ID, ClinicianID: "dr-1",
		Status: prescription.StatusApproved, PaymentStatus: prescription.PaymentPaid,
		AuthorizationStatus: prescription.AuthNotRequired,
	}
	env.prescriptions.prescriptions[p.ID] = p

	dispensaryID := env.dispensaryID
	c := &cart.Cart{ID: uuid.New(), PrescriptionID: p.ID, PharmacistID: "ph-1",
		DispensaryID: &dispensaryID, Status: cart.CartPaid}
	env.carts.carts[c.ID] = c

	var items []*cart.CartItem
	for i, med := range meds {
		pItem := &prescription.Item{
			ID: uuid.New(), PrescriptionID: p.ID, MedicationID: med.ID, QuantityPrescribed: prescribed[i],
		}
		env.prescriptions.items[pItem.ID] = pItem
		p.Items = append(p.Items, pItem)

		cItem := &cart.CartItem{
			ID: uuid.New(), CartID: c.ID, PrescriptionItemID: pItem.ID,
			MedicationID: med.ID, Quantity: requested[i], UnitPriceSnapshot: med.UnitPrice,
		}
		env.carts.items[cItem.ID] = cItem
		items = append(items, cItem)
	}
	return c, items
}

func TestExecute_FEFOAcrossBatches(t *testing.T) {
	env := newTestEnv()
	late := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	med := env.addMedication("Amoxicillin 250mg", 100_00,
		&batch{number: "B-LATE", expiry: late, qty: 15},
		&batch{number: "B-EARLY", expiry: early, qty: 10})
	c, items := env.paidCart([]*medication.Medication{med}, []int{20}, []int{20})

	result, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 20}}, "ph-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Logs) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(result.Logs))
	}
	if result.Logs[0].BatchNumber != "B-EARLY" || result.Logs[0].Quantity != 10 {
		t.Errorf("expected 10 from the earlier expiry first, got %+v", result.Logs[0])
	}
	if result.Logs[1].BatchNumber != "B-LATE" || result.Logs[1].Quantity != 10 {
		t.Errorf("expected 10 from the later batch, got %+v", result.Logs[1])
	}
	for _, l := range result.Logs {
		if l.Total != int64(l.Quantity)*100_00 {
			t.Errorf("log total mismatch: %+v", l)
		}
	}

	p := env.prescriptions.prescriptions[c.PrescriptionID]
	if p.Status != prescription.StatusDispensed {
		t.Errorf("expected prescription dispensed, got %s", p.Status)
	}
	if env.carts.carts[c.ID].Status != cart.CartCompleted {
		t.Errorf("expected cart completed, got %s", env.carts.carts[c.ID].Status)
	}
	if env.notifier.dispensed != 1 {
		t.Errorf("expected 1 dispensed notification, got %d", env.notifier.dispensed)
	}
}

func TestExecute_PartialPass(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	medA := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	medB := env.addMedication("Drug B", 60_00, &batch{number: "B1", expiry: expiry, qty: 50})
	c, items := env.paidCart([]*medication.Medication{medA, medB}, []int{5, 10}, []int{5, 10})

	_, err := env.svc.Execute(context.Background(), c.ID, []Selection{
		{CartItemID: items[0].ID, Quantity: 5},
		{CartItemID: items[1].ID, Quantity: 4},
	}, "ph-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := env.prescriptions.prescriptions[c.PrescriptionID]
	if p.Status != prescription.StatusPartiallyDispensed {
		t.Errorf("expected prescription partially_dispensed, got %s", p.Status)
	}
	if env.carts.carts[c.ID].Status != cart.CartPartiallyDispensed {
		t.Errorf("expected cart partially_dispensed, got %s", env.carts.carts[c.ID].Status)
	}
	itemB := env.prescriptions.items[items[1].PrescriptionItemID]
	if got := itemB.QuantityPrescribed - itemB.QuantityDispensed; got != 6 {
		t.Errorf("expected 6 remaining on second item, got %d", got)
	}
}

func TestExecute_BlockedWhenNotDispensable(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	med := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	c, items := env.paidCart([]*medication.Medication{med}, []int{5}, []int{5})
	env.lifecycle.allow = false
	env.lifecycle.reason = "invoice is not paid"

	_, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 5}}, "ph-1")
	if !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestExecute_CartCancelledAfterPreflightRejected(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	med := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	c, items := env.paidCart([]*medication.Medication{med}, []int{5}, []int{5})

	// the cart moves to cancelled between the pre-flight check and the lock
	env.carts.carts[c.ID].Status = cart.CartCancelled
	env.lifecycle.allow = true

	_, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 5}}, "ph-1")
	if !errors.Is(err, apperror.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(env.logs.logs) != 0 {
		t.Errorf("no log rows may be written against a cancelled cart, got %d", len(env.logs.logs))
	}
	if env.stock.batches[med.ID][0].qty != 50 {
		t.Errorf("stock must be untouched, got %d", env.stock.batches[med.ID][0].qty)
	}
}

func TestExecute_PrescriptionCancelledAfterPreflightRejected(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	med := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	c, items := env.paidCart([]*medication.Medication{med}, []int{5}, []int{5})

	env.prescriptions.prescriptions[c.PrescriptionID].Status = prescription.StatusCancelled
	env.lifecycle.allow = true

	_, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 5}}, "ph-1")
	if !errors.Is(err, apperror.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(env.logs.logs) != 0 {
		t.Errorf("no log rows may be written for a cancelled prescription, got %d", len(env.logs.logs))
	}
}

func TestExecute_RepeatSubmissionRejected(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	med := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	c, items := env.paidCart([]*medication.Medication{med}, []int{10}, []int{10})

	if _, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 6}}, "ph-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// re-submitting the same 6 exceeds the 4 still owed
	_, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 6}}, "ph-1")
	if !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if got := env.carts.items[items[0].ID].QuantityDispensed; got != 6 {
		t.Errorf("expected dispensed to stay at 6, got %d", got)
	}
}

func TestExecute_AlreadyDispensedSkippedWithWarning(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	medA := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	medB := env.addMedication("Drug B", 60_00, &batch{number: "B1", expiry: expiry, qty: 50})
	c, items := env.paidCart([]*medication.Medication{medA, medB}, []int{5, 10}, []int{5, 10})
	items[0].QuantityDispensed = 5
	env.carts.items[items[0].ID] = items[0]

	result, err := env.svc.Execute(context.Background(), c.ID, []Selection{
		{CartItemID: items[0].ID, Quantity: 5},
		{CartItemID: items[1].ID, Quantity: 10},
	}, "ph-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected skip warning, got %v", result.Warnings)
	}
	if len(result.Logs) != 1 || result.Logs[0].CartItemID != items[1].ID {
		t.Errorf("expected only the second item dispensed, got %+v", result.Logs)
	}
}

func TestExecute_RollsBackOnInsufficientStock(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	medA := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	medB := env.addMedication("Drug B", 60_00, &batch{number: "B1", expiry: expiry, qty: 3})
	c, items := env.paidCart([]*medication.Medication{medA, medB}, []int{5, 10}, []int{5, 10})

	_, err := env.svc.Execute(context.Background(), c.ID, []Selection{
		{CartItemID: items[0].ID, Quantity: 5},
		{CartItemID: items[1].ID, Quantity: 10},
	}, "ph-1")
	if !errors.Is(err, apperror.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := env.carts.items[items[0].ID].QuantityDispensed; got != 0 {
		t.Errorf("expected first item rolled back, got %d dispensed", got)
	}
	if len(env.logs.logs) != 0 {
		t.Errorf("expected no log rows kept, got %d", len(env.logs.logs))
	}
	if env.stock.batches[medA.ID][0].qty != 50 {
		t.Errorf("expected stock restored, got %d", env.stock.batches[medA.ID][0].qty)
	}
	p := env.prescriptions.prescriptions[c.PrescriptionID]
	if p.Status != prescription.StatusApproved {
		t.Errorf("expected prescription status unchanged, got %s", p.Status)
	}
}

func TestExecute_OverPrescribedClampsWithWarning(t *testing.T) {
	env := newTestEnv()
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	med := env.addMedication("Drug A", 50_00, &batch{number: "A1", expiry: expiry, qty: 50})
	// pharmacist requested 14 against 10 prescribed
	c, items := env.paidCart([]*medication.Medication{med}, []int{10}, []int{14})

	result, err := env.svc.Execute(context.Background(), c.ID,
		[]Selection{{CartItemID: items[0].ID, Quantity: 14}}, "ph-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := 0
	for _, l := range result.Logs {
		total += l.Quantity
	}
	if total != 14 {
		t.Errorf("expected 14 units deducted, got %d", total)
	}
	pItem := env.prescriptions.items[items[0].PrescriptionItemID]
	if pItem.QuantityDispensed != 10 || !pItem.IsDispensed {
		t.Errorf("expected prescription item clamped at 10, got %d", pItem.QuantityDispensed)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected overflow warning, got %v", result.Warnings)
	}
}

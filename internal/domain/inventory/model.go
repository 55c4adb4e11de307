package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Dispensary is a physical dispensing point. Each dispensary owns exactly
// one active store, its working stock.
type Dispensary struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Location      string     `json:"location"`
	ActiveStoreID *uuid.UUID `json:"active_store_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BulkStore is facility-level stock. Medications enter through purchases and
// leave through transfers to active stores.
type BulkStore struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type ActiveStore struct {
	ID           uuid.UUID `json:"id"`
	DispensaryID uuid.UUID `json:"dispensary_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// BatchRow is one batch of one medication in one store. Quantity never goes
// negative at a committed state; within a store (medication, batch_number)
// is unique.
type BatchRow struct {
	ID           uuid.UUID `json:"id"`
	StoreID      uuid.UUID `json:"store_id"`
	MedicationID uuid.UUID `json:"medication_id"`
	BatchNumber  string    `json:"batch_number"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Quantity     int       `json:"quantity"`
	UnitCost     int64     `json:"unit_cost"`
	ReceivedAt   time.Time `json:"received_at"`
}

// LegacyBatchNumber marks synthetic rows produced by the legacy inventory
// migration and legacy stock consumed before migration.
const LegacyBatchNumber = "LEGACY"

// LegacyRow is the old flat per-dispensary quantity without batch tracking.
// Recognized on read; new writes go to batch rows only.
type LegacyRow struct {
	ID           uuid.UUID `json:"id"`
	DispensaryID uuid.UUID `json:"dispensary_id"`
	MedicationID uuid.UUID `json:"medication_id"`
	Quantity     int       `json:"quantity"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BatchDeduction reports one batch consumed by a FEFO deduction.
type BatchDeduction struct {
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
	UnitCost    int64     `json:"unit_cost"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

// Transfer statuses.
const (
	TransferRequested = "requested"
	TransferApproved  = "approved"
	TransferExecuted  = "executed"
	TransferRejected  = "rejected"
)

// Transfer moves one batch from a bulk store to an active store. Execution
// is a paired decrement/increment under one transaction.
type Transfer struct {
	ID            uuid.UUID  `json:"id"`
	SourceStoreID uuid.UUID  `json:"source_store_id"`
	DestStoreID   uuid.UUID  `json:"dest_store_id"`
	MedicationID  uuid.UUID  `json:"medication_id"`
	BatchNumber   string     `json:"batch_number"`
	Quantity      int        `json:"quantity"`
	Status        string     `json:"status"`
	RequestedBy   string     `json:"requested_by"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	ExecutedBy    string     `json:"executed_by,omitempty"`
	RejectedBy    string     `json:"rejected_by,omitempty"`
	RejectReason  string     `json:"reject_reason,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
}

// Purchase approval statuses.
const (
	PurchaseDraft     = "draft"
	PurchasePending   = "pending"
	PurchaseApproved  = "approved"
	PurchaseRejected  = "rejected"
	PurchaseCancelled = "cancelled"
	PurchaseReceived  = "received"
)

// Purchase is a supplier invoice intake. Approved purchases land in bulk
// store inventory on receipt.
type Purchase struct {
	ID             uuid.UUID       `json:"id"`
	SupplierID     uuid.UUID       `json:"supplier_id"`
	BulkStoreID    uuid.UUID       `json:"bulk_store_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	ApprovalStatus string          `json:"approval_status"`
	TotalCost      int64           `json:"total_cost"`
	Items          []*PurchaseItem `json:"items,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type PurchaseItem struct {
	ID           uuid.UUID `json:"id"`
	PurchaseID   uuid.UUID `json:"purchase_id"`
	MedicationID uuid.UUID `json:"medication_id"`
	BatchNumber  string    `json:"batch_number"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Quantity     int       `json:"quantity"`
	UnitCost     int64     `json:"unit_cost"`
}

// StockLevel is an availability report row for low-stock monitoring.
type StockLevel struct {
	MedicationID   uuid.UUID `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	StoreID        uuid.UUID `json:"store_id"`
	StoreName      string    `json:"store_name"`
	Quantity       int       `json:"quantity"`
	ReorderLevel   int       `json:"reorder_level"`
}

// ExpiringBatch is a report row for batches at or past expiry.
type ExpiringBatch struct {
	MedicationID   uuid.UUID `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	StoreID        uuid.UUID `json:"store_id"`
	StoreName      string    `json:"store_name"`
	BatchNumber    string    `json:"batch_number"`
	ExpiryDate     time.Time `json:"expiry_date"`
	Quantity       int       `json:"quantity"`
}

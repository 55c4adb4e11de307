package medication

import (
	"time"

	"github.com/google/uuid"
)

// Medication is a catalog entry. UnitPrice is the list price in kobo
// (minor currency units); the actual dispensing unit cost may derive
// from the batch it is taken from.
type Medication struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	GenericName  string     `json:"generic_name"`
	CategoryID   *uuid.UUID `json:"category_id,omitempty"`
	DosageForm   string     `json:"dosage_form"`
	Strength     string     `json:"strength"`
	Manufacturer string     `json:"manufacturer"`
	UnitPrice    int64      `json:"unit_price"`
	ReorderLevel int        `json:"reorder_level"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Category groups medications for catalog browsing.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Supplier is a vendor that purchases are raised against.
type Supplier struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

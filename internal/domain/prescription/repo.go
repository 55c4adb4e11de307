package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error)

	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*Item, error)
	AddItem(ctx context.Context, item *Item) error
	UpdateItem(ctx context.Context, item *Item) error
	ListItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error)
}

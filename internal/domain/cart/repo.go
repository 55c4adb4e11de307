package cart

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Cart) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cart, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Cart, error)
	Update(ctx context.Context, c *Cart) error
	// GetActiveByPrescription returns (nil, nil) when no active cart exists.
	GetActiveByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*Cart, error)
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Cart, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Cart, int, error)

	AddItem(ctx context.Context, item *CartItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*CartItem, error)
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*CartItem, error)
	UpdateItem(ctx context.Context, item *CartItem) error
	RemoveItem(ctx context.Context, id uuid.UUID) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]*CartItem, error)
}

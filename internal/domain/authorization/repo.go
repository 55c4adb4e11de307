package authorization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, code *Code) error
	GetByID(ctx context.Context, id uuid.UUID) (*Code, error)
	GetByCode(ctx context.Context, code string) (*Code, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*Code, error)
	Update(ctx context.Context, code *Code) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Code, int, error)
}

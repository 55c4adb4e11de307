package audit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, l *Log) error
	GetByID(ctx context.Context, id uuid.UUID) (*Log, error)
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*Log, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Log, int, error)
}

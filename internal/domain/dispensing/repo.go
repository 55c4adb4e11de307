package dispensing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, log *Log) error
	ListByPrescriptionItem(ctx context.Context, prescriptionItemID uuid.UUID) ([]*Log, error)
	ListByDispensary(ctx context.Context, dispensaryID uuid.UUID, limit, offset int) ([]*Log, int, error)
}

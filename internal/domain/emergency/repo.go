package emergency

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Emergency) error
	GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error)
	// GetForUpdate locks the row for the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Emergency, error)
	// UpdateIfStatus writes e only while the stored status still equals
	// observed; otherwise it fails with an InvalidTransition error.
	UpdateIfStatus(ctx context.Context, e *Emergency, observed Status) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Emergency, int, error)
}

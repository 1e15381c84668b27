package performance

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// LockStaff takes a per-staff lock held until the bound transaction ends.
	LockStaff(ctx context.Context, staffID uuid.UUID) error
	CallsAssignedTo(ctx context.Context, userID uuid.UUID) ([]CallRecord, error)
	Upsert(ctx context.Context, s *Snapshot) error
	// GetByStaff returns apperr NotFound when no snapshot was stored yet.
	GetByStaff(ctx context.Context, staffID uuid.UUID) (*Snapshot, error)
	List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error)
}

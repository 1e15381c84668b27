package directory

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	// ListIDsByRole returns active users holding role.
	ListIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	// GetForUpdate locks the row for the rest of the bound transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Room, error)
	List(ctx context.Context, limit, offset int) ([]*Room, int, error)
	SetOccupancy(ctx context.Context, id uuid.UUID, patientID *uuid.UUID) (*Room, error)
	SetLastCallPriority(ctx context.Context, id uuid.UUID, priority string) error
}

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Staff, error)
	List(ctx context.Context, availableOnly bool, limit, offset int) ([]*Staff, int, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Staff, error)
	// ListAvailableUserIDs snapshots the user ids of staff currently available.
	ListAvailableUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

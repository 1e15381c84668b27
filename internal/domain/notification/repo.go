package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// InsertBatch writes rows, silently skipping ones that duplicate an
	// existing (recipient, emergency, type, event) key. Returns rows written.
	InsertBatch(ctx context.Context, items []*Notification) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	// ListForRecipient returns rows addressed to userID plus role-only rows
	// for any of roles, newest first.
	ListForRecipient(ctx context.Context, userID uuid.UUID, roles []string, isRead *bool, limit, offset int) ([]*Notification, int, error)
	SetRead(ctx context.Context, id uuid.UUID, isRead bool) (*Notification, error)
	Stats(ctx context.Context, userID uuid.UUID, roles []string) (*Stats, error)
}

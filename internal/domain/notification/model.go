package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeNewCall    Type = "new_call"
	TypeUpdate     Type = "update"
	TypeReminder   Type = "reminder"
	TypeEscalation Type = "escalation"
	TypeAssignment Type = "assignment"
	TypeInfo       Type = "info"
	TypeRoomUpdate Type = "room_update"
)

var validTypes = map[Type]bool{
	TypeNewCall: true, TypeUpdate: true, TypeReminder: true, TypeEscalation: true,
	TypeAssignment: true, TypeInfo: true, TypeRoomUpdate: true,
}

func (t Type) Valid() bool { return validTypes[t] }

// Notification targets a user, a role, or both. When both are set the user
// receives it and the role is kept for filtering.
type Notification struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Role        *string    `db:"role" json:"role,omitempty"`
	EmergencyID *uuid.UUID `db:"emergency_id" json:"emergency_id,omitempty"`
	Type        Type       `db:"type" json:"type"`
	Message     string     `db:"message" json:"message"`
	EventKey    string     `db:"event_key" json:"-"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// VisibleTo reports whether the holder of userID and roles may see n.
func (n *Notification) VisibleTo(userID uuid.UUID, roles []string) bool {
	if n.UserID != nil {
		return *n.UserID == userID
	}
	if n.Role == nil {
		return false
	}
	for _, r := range roles {
		if r == *n.Role {
			return true
		}
	}
	return false
}

type Stats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
	Read   int `json:"read"`
}

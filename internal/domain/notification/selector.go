package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type selectorKind int

const (
	kindUser selectorKind = iota
	kindRole
	kindRoleMembers
	kindAvailableStaff
)

// Selector names the recipients of a dispatch.
type Selector struct {
	kind   selectorKind
	userID uuid.UUID
	role   string
}

// SingleUser targets one user.
func SingleUser(id uuid.UUID) Selector { return Selector{kind: kindUser, userID: id} }

// Role writes a single role-tagged row. It is not expanded to members.
func Role(role string) Selector { return Selector{kind: kindRole, role: role} }

// AllStaffWithRole writes one row per active user holding role.
func AllStaffWithRole(role string) Selector { return Selector{kind: kindRoleMembers, role: role} }

// AllAvailableStaff writes one row per staff member available at dispatch time.
func AllAvailableStaff() Selector { return Selector{kind: kindAvailableStaff} }

func (s Selector) String() string {
	switch s.kind {
	case kindUser:
		return "user:" + s.userID.String()
	case kindRole:
		return "role:" + s.role
	case kindRoleMembers:
		return "members:" + s.role
	default:
		return "available-staff"
	}
}

// Directory resolves selectors to user ids.
type Directory interface {
	UserIDsWithRole(ctx context.Context, role string) ([]uuid.UUID, error)
	AvailableStaffUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

type recipient struct {
	userID *uuid.UUID
	role   *string
}

func (s Selector) resolve(ctx context.Context, dir Directory) ([]recipient, error) {
	switch s.kind {
	case kindUser:
		id := s.userID
		return []recipient{{userID: &id}}, nil
	case kindRole:
		role := s.role
		return []recipient{{role: &role}}, nil
	case kindRoleMembers:
		ids, err := dir.UserIDsWithRole(ctx, s.role)
		if err != nil {
			return nil, fmt.Errorf("resolve role %q: %w", s.role, err)
		}
		role := s.role
		out := make([]recipient, len(ids))
		for i := range ids {
			out[i] = recipient{userID: &ids[i], role: &role}
		}
		return out, nil
	case kindAvailableStaff:
		ids, err := dir.AvailableStaffUserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve available staff: %w", err)
		}
		out := make([]recipient, len(ids))
		for i := range ids {
			out[i] = recipient{userID: &ids[i]}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown selector kind %d", s.kind)
}

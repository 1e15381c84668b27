package emergency

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusNotified   Status = "notified"
	StatusAssigned   Status = "assigned"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusCancelled  Status = "cancelled"
	StatusEscalated  Status = "escalated"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	for _, t := range terminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusNotified, StatusAssigned, StatusAccepted,
		StatusInProgress, StatusResolved, StatusCancelled, StatusEscalated:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Action string

const (
	ActionNotify   Action = "notify"
	ActionAssign   Action = "assign"
	ActionAccept   Action = "accept"
	ActionReach    Action = "reach"
	ActionResolve  Action = "resolve"
	ActionEscalate Action = "escalate"
	ActionCancel   Action = "cancel"
)

var nonTerminal = []Status{
	StatusPending, StatusNotified, StatusAssigned, StatusAccepted, StatusInProgress, StatusEscalated,
}

// allowedFrom lists the statuses each action may start from.
var allowedFrom = map[Action][]Status{
	ActionNotify:   {StatusPending, StatusNotified, StatusEscalated},
	ActionAssign:   {StatusPending, StatusNotified, StatusAssigned, StatusEscalated},
	ActionAccept:   {StatusPending, StatusNotified, StatusAssigned, StatusEscalated},
	ActionReach:    {StatusAccepted},
	ActionResolve:  nonTerminal,
	ActionEscalate: nonTerminal,
	ActionCancel:   nonTerminal,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := allowedFrom[a]
	return ok
}

// AllowedFrom reports whether a may be applied to an emergency in status s.
func (a Action) AllowedFrom(s Status) bool {
	for _, from := range allowedFrom[a] {
		if from == s {
			return true
		}
	}
	return false
}

// Emergency is one nurse call. Timestamps after CreatedAt are set at most
// once; EscalatedTo is only non-nil while the status is escalated.
type Emergency struct {
	ID             uuid.UUID  `json:"id"`
	RoomID         uuid.UUID  `json:"room_id"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
	Description    string     `json:"description"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	AssignedUser   *uuid.UUID `json:"assigned_user,omitempty"`
	AcceptedBy     *uuid.UUID `json:"accepted_by,omitempty"`
	EscalatedTo    *string    `json:"escalated_to,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	ReachedAt      *time.Time `json:"reached_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (e *Emergency) clone() *Emergency {
	cp := *e
	return &cp
}

// terminalStatuses are the statuses no action leaves.
var terminalStatuses = []Status{StatusResolved, StatusCancelled}

// ListFilter narrows List. Zero values match everything. Active keeps only
// calls that are not yet resolved or cancelled.
type ListFilter struct {
	Status       Status
	Priority     Priority
	RoomID       *uuid.UUID
	AssignedUser *uuid.UUID
	Active       bool
}

func sameUser(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

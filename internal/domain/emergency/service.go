package emergency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mbp/nursecall/internal/domain/directory"
	"github.com/mbp/nursecall/internal/domain/notification"
	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/auth"
	"github.com/mbp/nursecall/internal/platform/events"
	tmpl "github.com/mbp/nursecall/internal/platform/notification"
)

// Directory is the slice of the directory store the state machine reads and
// the one cached room field it owns.
type Directory interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*directory.Room, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	SetLastCallPriority(ctx context.Context, roomID uuid.UUID, priority string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, sel notification.Selector, message string, typ notification.Type, emergencyID *uuid.UUID, eventKey string) (int, error)
}

// Recalculator refreshes performance snapshots. RecalculateUsers runs inside
// the transition's transaction; Invalidate runs after commit.
type Recalculator interface {
	RecalculateUsers(ctx context.Context, userIDs ...uuid.UUID) ([]uuid.UUID, error)
	Invalidate(ctx context.Context, staffIDs ...uuid.UUID)
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo      Repository
	dir       Directory
	dispatch  Dispatcher
	perf      Recalculator
	tx        TxRunner
	events    events.Publisher
	templates *tmpl.TemplateEngine
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(repo Repository, dir Directory, dispatch Dispatcher, perf Recalculator, tx TxRunner,
	pub events.Publisher, templates *tmpl.TemplateEngine, log zerolog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if templates == nil {
		templates = tmpl.NewTemplateEngine()
	}
	return &Service{
		repo:      repo,
		dir:       dir,
		dispatch:  dispatch,
		perf:      perf,
		tx:        tx,
		events:    pub,
		templates: templates,
		now:       time.Now,
		log:       log.With().Str("component", "emergency").Logger(),
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateRequest is a call raised from a room.
type CreateRequest struct {
	RoomID      uuid.UUID  `json:"room_id"`
	PatientID   *uuid.UUID `json:"patient_id"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
}

// Create opens a pending emergency, records its priority on the room and
// pages every available staff member. The patient defaults to the room's
// current occupant.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*Emergency, error) {
	if req.RoomID == uuid.Nil {
		return nil, apperr.Validation("room_id is required")
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, apperr.Validation("unknown priority %q", req.Priority)
	}

	e := &Emergency{
		RoomID:      req.RoomID,
		PatientID:   req.PatientID,
		Description: strings.TrimSpace(req.Description),
		Priority:    req.Priority,
		Status:      StatusPending,
	}
	var room *directory.Room
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if room, err = s.dir.GetRoom(ctx, req.RoomID); err != nil {
			return err
		}
		if e.PatientID == nil {
			e.PatientID = room.PatientID
		} else if _, err := s.dir.GetPatient(ctx, *e.PatientID); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, e); err != nil {
			return err
		}
		return s.dir.SetLastCallPriority(ctx, room.ID, string(e.Priority))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("emergency_id", e.ID.String()).Str("room", room.RoomNumber).
		Str("priority", string(e.Priority)).Msg("emergency created")

	msg := s.templates.MustRender(tmpl.TemplateNewCall, map[string]string{
		"room":        room.RoomNumber,
		"description": e.Description,
	})
	s.notify(ctx, e, notification.AllAvailableStaff(), msg, notification.TypeNewCall, "created")
	s.publish(ctx, e, "created", actor.UserID)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Emergency, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown status %q", f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, 0, apperr.Validation("unknown priority %q", f.Priority)
	}
	if f.Active && f.Status.Terminal() {
		return nil, 0, apperr.Validation("status %q is never active", f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// TransitionRequest carries the action and its payload. AssignedUser is
// required for assign, Role for escalate.
type TransitionRequest struct {
	Action       Action     `json:"action"`
	AssignedUser *uuid.UUID `json:"assigned_user"`
	Role         string     `json:"role"`
}

func (s *Service) validate(ctx context.Context, actor auth.Actor, req *TransitionRequest) error {
	if !req.Action.Valid() {
		return apperr.Validation("unknown action %q", req.Action)
	}
	switch req.Action {
	case ActionAssign:
		if !actor.IsAdmin() {
			return apperr.Forbidden("only administrators can assign emergencies")
		}
		if req.AssignedUser == nil || *req.AssignedUser == uuid.Nil {
			return apperr.Validation("assigned_user is required")
		}
		if _, err := s.dir.GetUser(ctx, *req.AssignedUser); err != nil {
			return err
		}
	case ActionEscalate:
		req.Role = strings.TrimSpace(req.Role)
		if req.Role == "" {
			return apperr.Validation("role is required")
		}
	case ActionAccept:
		if actor.UserID == uuid.Nil {
			return apperr.Validation("accepting requires an identified user")
		}
	}
	return nil
}

// Transition applies req to the emergency. The status check and the write
// happen under a row lock in one transaction together with any performance
// recalculation; notifications and events follow the commit and never fail
// the call.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id uuid.UUID, req TransitionRequest) (*Emergency, error) {
	if err := s.validate(ctx, actor, &req); err != nil {
		return nil, err
	}

	var prev, next *Emergency
	var touched []uuid.UUID
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err = s.apply(cur, actor, req)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateIfStatus(ctx, next, cur.Status); err != nil {
			return err
		}
		prev = cur

		var users []uuid.UUID
		if !sameUser(cur.AssignedUser, next.AssignedUser) {
			users = append(users, deref(cur.AssignedUser), deref(next.AssignedUser))
		} else if req.Action == ActionResolve {
			users = append(users, deref(next.AssignedUser))
		}
		if len(users) == 0 || s.perf == nil {
			return nil
		}
		touched, err = s.perf.RecalculateUsers(ctx, users...)
		if err != nil {
			return fmt.Errorf("recalculate performance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("emergency_id", id.String()).Str("action", string(req.Action)).
		Str("from", string(prev.Status)).Str("to", string(next.Status)).
		Str("actor", actor.UserID.String()).Msg("emergency transition")

	if len(touched) > 0 {
		s.perf.Invalidate(ctx, touched...)
	}
	s.announce(ctx, actor, req.Action, next)
	s.publish(ctx, next, string(req.Action), actor.UserID)
	return next, nil
}

// apply returns the emergency as it looks after the action, or the error
// that forbids it. cur is never modified.
func (s *Service) apply(cur *Emergency, actor auth.Actor, req TransitionRequest) (*Emergency, error) {
	if cur.Status.Terminal() {
		return nil, apperr.InvalidTransition("emergency %s is already %s", cur.ID, cur.Status)
	}
	if req.Action == ActionAccept && cur.AssignedUser != nil && *cur.AssignedUser != actor.UserID {
		return nil, apperr.Conflict("emergency %s is assigned to another user", cur.ID)
	}
	if !req.Action.AllowedFrom(cur.Status) {
		return nil, apperr.InvalidTransition("cannot %s an emergency that is %s", req.Action, cur.Status)
	}

	now := s.clock()
	if now.Before(cur.CreatedAt) {
		now = cur.CreatedAt
	}
	next := cur.clone()
	switch req.Action {
	case ActionNotify:
		next.Status = StatusNotified
	case ActionAssign:
		assignee := *req.AssignedUser
		next.Status = StatusAssigned
		next.AssignedUser = &assignee
	case ActionAccept:
		actorID := actor.UserID
		next.Status = StatusAccepted
		next.AcceptedBy = &actorID
		setOnce(&next.AcceptedAt, now)
		setOnce(&next.AcknowledgedAt, now)
		if next.AssignedUser == nil {
			next.AssignedUser = &actorID
		}
	case ActionReach:
		next.Status = StatusInProgress
		setOnce(&next.ReachedAt, now)
	case ActionResolve:
		next.Status = StatusResolved
		setOnce(&next.ResolvedAt, now)
	case ActionEscalate:
		role := req.Role
		next.Status = StatusEscalated
		next.EscalatedTo = &role
	case ActionCancel:
		next.Status = StatusCancelled
	}
	if next.Status != StatusEscalated {
		next.EscalatedTo = nil
	}
	return next, nil
}

func setOnce(field **time.Time, t time.Time) {
	if *field == nil {
		v := t
		*field = &v
	}
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// announce fans out the notifications that follow a committed transition.
func (s *Service) announce(ctx context.Context, actor auth.Actor, action Action, e *Emergency) {
	data := map[string]string{
		"room":     s.roomLabel(ctx, e.RoomID),
		"priority": string(e.Priority),
	}
	key := fmt.Sprintf("%s-%d", action, e.UpdatedAt.UnixNano())

	switch action {
	case ActionNotify:
		msg := s.templates.MustRender(tmpl.TemplateReminder, data)
		s.notify(ctx, e, notification.AllAvailableStaff(), msg, notification.TypeReminder, key)
	case ActionAssign:
		msg := s.templates.MustRender(tmpl.TemplateAssignment, data)
		s.notify(ctx, e, notification.SingleUser(*e.AssignedUser), msg, notification.TypeAssignment, key)
	case ActionAccept:
		data["actor"] = s.userLabel(ctx, actor.UserID)
		msg := s.templates.MustRender(tmpl.TemplateAccepted, data)
		s.notify(ctx, e, notification.Role(auth.RoleAdmin), msg, notification.TypeUpdate, key)
		s.notify(ctx, e, notification.SingleUser(*e.AssignedUser), msg, notification.TypeUpdate, key)
	case ActionResolve:
		if e.AssignedUser != nil {
			msg := s.templates.MustRender(tmpl.TemplateResolved, data)
			s.notify(ctx, e, notification.SingleUser(*e.AssignedUser), msg, notification.TypeInfo, key)
		}
		data["time"] = e.ResolvedAt.Format("2006-01-02 15:04 MST")
		msg := s.templates.MustRender(tmpl.TemplateResolvedAdmin, data)
		s.notify(ctx, e, notification.AllStaffWithRole(auth.RoleAdmin), msg, notification.TypeUpdate, key)
	case ActionEscalate:
		data["role"] = *e.EscalatedTo
		msg := s.templates.MustRender(tmpl.TemplateEscalated, data)
		s.notify(ctx, e, notification.Role(*e.EscalatedTo), msg, notification.TypeEscalation, key)
	case ActionCancel:
		if e.AssignedUser != nil {
			msg := s.templates.MustRender(tmpl.TemplateCancelled, data)
			s.notify(ctx, e, notification.SingleUser(*e.AssignedUser), msg, notification.TypeUpdate, key)
		}
	}
}

func (s *Service) notify(ctx context.Context, e *Emergency, sel notification.Selector, msg string, typ notification.Type, key string) {
	if s.dispatch == nil {
		return
	}
	n, err := s.dispatch.Dispatch(ctx, sel, msg, typ, &e.ID, key)
	if err != nil {
		s.log.Error().Err(err).Str("emergency_id", e.ID.String()).Str("target", sel.String()).
			Str("type", string(typ)).Msg("notification dispatch failed")
		return
	}
	s.log.Debug().Str("emergency_id", e.ID.String()).Str("target", sel.String()).
		Str("type", string(typ)).Int("created", n).Msg("notifications dispatched")
}

func (s *Service) publish(ctx context.Context, e *Emergency, action string, actorID uuid.UUID) {
	evt := events.Event{
		Action:       action,
		EmergencyID:  e.ID,
		RoomID:       e.RoomID,
		Status:       string(e.Status),
		Priority:     string(e.Priority),
		AssignedUser: e.AssignedUser,
		OccurredAt:   e.UpdatedAt,
	}
	if actorID != uuid.Nil {
		evt.ActorID = &actorID
	}
	if e.EscalatedTo != nil {
		evt.EscalatedTo = *e.EscalatedTo
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("emergency_id", e.ID.String()).Str("action", action).Msg("event publish failed")
	}
}

func (s *Service) roomLabel(ctx context.Context, roomID uuid.UUID) string {
	room, err := s.dir.GetRoom(ctx, roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("room lookup for message failed")
		return roomID.String()
	}
	return room.RoomNumber
}

func (s *Service) userLabel(ctx context.Context, userID uuid.UUID) string {
	u, err := s.dir.GetUser(ctx, userID)
	if err != nil || u.FullName == "" {
		return userID.String()
	}
	return u.FullName
}

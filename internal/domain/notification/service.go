package notification

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/auth"
	tmpl "github.com/mbp/nursecall/internal/platform/notification"
)

type Service struct {
	repo      Repository
	dispatch  *Dispatcher
	templates *tmpl.TemplateEngine
	log       zerolog.Logger
}

func NewService(repo Repository, dispatch *Dispatcher, templates *tmpl.TemplateEngine, log zerolog.Logger) *Service {
	return &Service{repo: repo, dispatch: dispatch, templates: templates, log: log}
}

func (s *Service) List(ctx context.Context, actor auth.Actor, isRead *bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListForRecipient(ctx, actor.UserID, actor.Roles, isRead, limit, offset)
}

// Mark sets the read flag. Rows the actor cannot see report NotFound.
func (s *Service) Mark(ctx context.Context, actor auth.Actor, id uuid.UUID, isRead bool) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.VisibleTo(actor.UserID, actor.Roles) {
		return nil, apperr.NotFound("notification %s", id)
	}
	if n.IsRead == isRead {
		return n, nil
	}
	return s.repo.SetRead(ctx, id, isRead)
}

func (s *Service) Stats(ctx context.Context, actor auth.Actor) (*Stats, error) {
	return s.repo.Stats(ctx, actor.UserID, actor.Roles)
}

// SendRequest is a manual notification from an administrator.
type SendRequest struct {
	UserID      *uuid.UUID `json:"user_id"`
	Role        string     `json:"role"`
	EmergencyID *uuid.UUID `json:"emergency_id"`
	Type        Type       `json:"type"`
	Message     string     `json:"message"`
}

// Send targets the user when given, otherwise the role tag.
func (s *Service) Send(ctx context.Context, req SendRequest) (int, error) {
	req.Message = strings.TrimSpace(req.Message)
	req.Role = strings.TrimSpace(req.Role)
	if req.Message == "" {
		return 0, apperr.Validation("message is required")
	}
	if req.Type == "" {
		req.Type = TypeInfo
	}
	if !req.Type.Valid() {
		return 0, apperr.Validation("unknown notification type %q", req.Type)
	}

	var sel Selector
	switch {
	case req.UserID != nil:
		sel = SingleUser(*req.UserID)
	case req.Role != "":
		sel = Role(req.Role)
	default:
		return 0, apperr.Validation("user_id or role is required")
	}
	return s.dispatch.Dispatch(ctx, sel, req.Message, req.Type, req.EmergencyID, "manual-"+uuid.NewString())
}

// NotifyRoomUpdate tells every available staff member about an occupancy change.
func (s *Service) NotifyRoomUpdate(ctx context.Context, roomNumber string, occupied bool, eventKey string) error {
	id := tmpl.TemplateRoomVacated
	if occupied {
		id = tmpl.TemplateRoomOccupied
	}
	msg := s.templates.MustRender(id, map[string]string{"room": roomNumber})
	_, err := s.dispatch.Dispatch(ctx, AllAvailableStaff(), msg, TypeRoomUpdate, nil, eventKey)
	return err
}

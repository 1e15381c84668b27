package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	tmpl "github.com/mbp/nursecall/internal/platform/notification"
)

// Dispatcher turns a selector into notification rows.
type Dispatcher struct {
	repo Repository
	dir  Directory
	log  zerolog.Logger
}

func NewDispatcher(repo Repository, dir Directory, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, dir: dir, log: log.With().Str("component", "dispatcher").Logger()}
}

// Dispatch writes one row per recipient resolved from sel. Rows repeating an
// earlier (recipient, emergency, type, eventKey) are dropped, so retrying a
// dispatch is safe. Returns the number of rows written.
func (d *Dispatcher) Dispatch(ctx context.Context, sel Selector, message string, typ Type, emergencyID *uuid.UUID, eventKey string) (int, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("unknown notification type %q", typ)
	}
	recipients, err := sel.resolve(ctx, d.dir)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	message = tmpl.Truncate(message, tmpl.MaxMessageLength)
	items := make([]*Notification, len(recipients))
	for i, rc := range recipients {
		items[i] = &Notification{
			UserID:      rc.userID,
			Role:        rc.role,
			EmergencyID: emergencyID,
			Type:        typ,
			Message:     message,
			EventKey:    eventKey,
		}
	}

	written, err := d.repo.InsertBatch(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("insert %d %s notifications for %s: %w", len(items), typ, sel, err)
	}
	d.log.Debug().
		Str("selector", sel.String()).
		Str("type", string(typ)).
		Int("resolved", len(items)).
		Int("written", written).
		Msg("dispatched")
	return written, nil
}

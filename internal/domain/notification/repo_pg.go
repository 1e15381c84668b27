package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const cols = `id, user_id, role, emergency_id, type, message, event_key, is_read, read_at, created_at`

func scan(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Role, &n.EmergencyID, &n.Type, &n.Message, &n.EventKey,
		&n.IsRead, &n.ReadAt, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) InsertBatch(ctx context.Context, items []*Notification) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(items))
	users := make([]*uuid.UUID, len(items))
	roles := make([]*string, len(items))
	emergencies := make([]*uuid.UUID, len(items))
	types := make([]string, len(items))
	messages := make([]string, len(items))
	keys := make([]string, len(items))
	for i, n := range items {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		ids[i], users[i], roles[i], emergencies[i] = n.ID, n.UserID, n.Role, n.EmergencyID
		types[i], messages[i], keys[i] = string(n.Type), n.Message, n.EventKey
	}

	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification (id, user_id, role, emergency_id, type, message, event_key)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::uuid[], $5::text[], $6::text[], $7::text[])
		ON CONFLICT DO NOTHING`,
		ids, users, roles, emergencies, types, messages, keys)
	if err != nil {
		return 0, translateInsertErr(err)
	}
	return int(tag.RowsAffected()), nil
}

var missingTargets = map[string]string{
	"notification_user_id_fkey":      "user",
	"notification_emergency_id_fkey": "emergency",
}

// translateInsertErr reports a recipient or emergency that does not exist as
// NotFound.
func translateInsertErr(err error) error {
	constraint, ok := db.ForeignKeyViolation(err)
	if !ok {
		return err
	}
	if what, known := missingTargets[constraint]; known {
		return apperr.NotFound("notification %s does not exist", what)
	}
	return apperr.NotFound("notification target violates %s", constraint)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM notification WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("notification %s", id)
	}
	return n, err
}

const recipientFilter = `(user_id = $1 OR (user_id IS NULL AND role = ANY($2::text[])))`

func (r *repoPG) ListForRecipient(ctx context.Context, userID uuid.UUID, roles []string, isRead *bool, limit, offset int) ([]*Notification, int, error) {
	if roles == nil {
		roles = []string{}
	}
	where := ` WHERE ` + recipientFilter + ` AND ($3::boolean IS NULL OR is_read = $3)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notification`+where, userID, roles, isRead).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM notification`+where+`
		ORDER BY created_at DESC, id LIMIT $4 OFFSET $5`, userID, roles, isRead, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SetRead(ctx context.Context, id uuid.UUID, isRead bool) (*Notification, error) {
	n, err := scan(r.conn(ctx).QueryRow(ctx, `
		UPDATE notification
		SET is_read = $2, read_at = CASE WHEN $2 THEN COALESCE(read_at, NOW()) ELSE NULL END
		WHERE id = $1
		RETURNING `+cols, id, isRead))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("notification %s", id)
	}
	return n, err
}

func (r *repoPG) Stats(ctx context.Context, userID uuid.UUID, roles []string) (*Stats, error) {
	if roles == nil {
		roles = []string{}
	}
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read), COUNT(*) FILTER (WHERE is_read)
		FROM notification WHERE `+recipientFilter, userID, roles).Scan(&s.Total, &s.Unread, &s.Read)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

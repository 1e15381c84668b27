package emergency

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const cols = `id, room_id, patient_id, description, priority, status, assigned_user, accepted_by,
	escalated_to, created_at, acknowledged_at, accepted_at, reached_at, resolved_at, updated_at`

func scan(row pgx.Row) (*Emergency, error) {
	var e Emergency
	err := row.Scan(&e.ID, &e.RoomID, &e.PatientID, &e.Description, &e.Priority, &e.Status,
		&e.AssignedUser, &e.AcceptedBy, &e.EscalatedTo, &e.CreatedAt, &e.AcknowledgedAt,
		&e.AcceptedAt, &e.ReachedAt, &e.ResolvedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Emergency) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency (id, room_id, patient_id, description, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		e.ID, e.RoomID, e.PatientID, e.Description, e.Priority, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert emergency: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	e, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM emergency WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("emergency %s", id)
	}
	return e, err
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	e, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM emergency WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("emergency %s", id)
	}
	return e, err
}

func (r *repoPG) UpdateIfStatus(ctx context.Context, e *Emergency, observed Status) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE emergency SET
			status = $3, assigned_user = $4, accepted_by = $5, escalated_to = $6,
			acknowledged_at = $7, accepted_at = $8, reached_at = $9, resolved_at = $10,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		e.ID, observed, e.Status, e.AssignedUser, e.AcceptedBy, e.EscalatedTo,
		e.AcknowledgedAt, e.AcceptedAt, e.ReachedAt, e.ResolvedAt,
	).Scan(&e.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.InvalidTransition("emergency %s is no longer %s", e.ID, observed)
	}
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Emergency, int, error) {
	var conds []string
	var args []interface{}
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Priority != "" {
		add("priority = $%d", f.Priority)
	}
	if f.RoomID != nil {
		add("room_id = $%d", *f.RoomID)
	}
	if f.AssignedUser != nil {
		add("assigned_user = $%d", *f.AssignedUser)
	}
	if f.Active {
		terminal := make([]string, len(terminalStatuses))
		for i, st := range terminalStatuses {
			terminal[i] = string(st)
		}
		add("status <> ALL($%d::text[])", terminal)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM emergency%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Emergency
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

package performance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) LockStaff(ctx context.Context, staffID uuid.UUID) error {
	if db.ConnFromContext(ctx) == nil {
		return errors.New("staff lock needs a transaction")
	}
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, staffID)
	return err
}

func (r *repoPG) CallsAssignedTo(ctx context.Context, userID uuid.UUID) ([]CallRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, created_at, acknowledged_at, resolved_at
		FROM emergency WHERE assigned_user = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var calls []CallRecord
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(&c.Status, &c.CreatedAt, &c.AcknowledgedAt, &c.ResolvedAt); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func (r *repoPG) Upsert(ctx context.Context, s *Snapshot) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff_performance (staff_id, total_assigned, resolved, resolution_rate,
			avg_response_time_us, avg_resolution_time_us, satisfaction_percent, rating, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (staff_id) DO UPDATE SET
			total_assigned = EXCLUDED.total_assigned,
			resolved = EXCLUDED.resolved,
			resolution_rate = EXCLUDED.resolution_rate,
			avg_response_time_us = EXCLUDED.avg_response_time_us,
			avg_resolution_time_us = EXCLUDED.avg_resolution_time_us,
			satisfaction_percent = EXCLUDED.satisfaction_percent,
			rating = EXCLUDED.rating,
			last_updated = EXCLUDED.last_updated`,
		s.StaffID, s.TotalAssigned, s.Resolved, s.ResolutionRate,
		s.AvgResponseTime.Microseconds(), s.AvgResolutionTime.Microseconds(),
		s.SatisfactionPercent, s.Rating, s.LastUpdated)
	return err
}

const cols = `staff_id, total_assigned, resolved, resolution_rate, avg_response_time_us,
	avg_resolution_time_us, satisfaction_percent, rating, last_updated`

func scan(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	var respUS, resoUS int64
	var updated time.Time
	if err := row.Scan(&s.StaffID, &s.TotalAssigned, &s.Resolved, &s.ResolutionRate, &respUS, &resoUS,
		&s.SatisfactionPercent, &s.Rating, &updated); err != nil {
		return nil, err
	}
	s.AvgResponseTime = time.Duration(respUS) * time.Microsecond
	s.AvgResolutionTime = time.Duration(resoUS) * time.Microsecond
	s.LastUpdated = &updated
	return &s, nil
}

func (r *repoPG) GetByStaff(ctx context.Context, staffID uuid.UUID) (*Snapshot, error) {
	s, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM staff_performance WHERE staff_id = $1`, staffID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("performance snapshot for staff %s", staffID)
	}
	return s, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff_performance`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM staff_performance
		ORDER BY resolution_rate DESC, staff_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

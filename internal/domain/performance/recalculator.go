package performance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mbp/nursecall/internal/domain/directory"
)

const statusResolved = "resolved"

// TxRunner binds a transaction to the context handed to fn, joining one that
// is already bound.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type inline struct{}

func (inline) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Recalculator is the only writer of staff_performance.
type Recalculator struct {
	repo Repository
	tx   TxRunner
	now  func() time.Time
}

// NewRecalculator returns a recalculator persisting through repo. A nil tx
// runs each persisted recalculation on whatever connection ctx carries.
func NewRecalculator(repo Repository, tx TxRunner) *Recalculator {
	if tx == nil {
		tx = inline{}
	}
	return &Recalculator{repo: repo, tx: tx, now: time.Now}
}

// Recalculate rebuilds the snapshot for staff from every emergency assigned
// to its user. With persist the snapshot is upserted and stamped; without it
// nothing is written. Running it twice over unchanged data yields the same
// figures.
//
// A persisted run holds the staff lock from the read through the upsert, so
// writers for one staff member queue up and each reads the calls committed by
// the one before it.
func (r *Recalculator) Recalculate(ctx context.Context, staff *directory.Staff, persist bool) (*Snapshot, error) {
	if !persist {
		return r.compute(ctx, staff)
	}

	var snap *Snapshot
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.repo.LockStaff(ctx, staff.ID); err != nil {
			return fmt.Errorf("lock staff %s: %w", staff.ID, err)
		}
		s, err := r.compute(ctx, staff)
		if err != nil {
			return err
		}
		stamp := r.now().UTC().Truncate(time.Microsecond)
		s.LastUpdated = &stamp
		if err := r.repo.Upsert(ctx, s); err != nil {
			return fmt.Errorf("store snapshot for staff %s: %w", staff.ID, err)
		}
		snap = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Recalculator) compute(ctx context.Context, staff *directory.Staff) (*Snapshot, error) {
	calls, err := r.repo.CallsAssignedTo(ctx, staff.UserID)
	if err != nil {
		return nil, fmt.Errorf("load calls for staff %s: %w", staff.ID, err)
	}
	snap := Compute(calls)
	snap.StaffID = staff.ID
	return snap, nil
}

// Compute aggregates calls. Averages only cover calls where the relevant
// timestamp is set and are truncated to microseconds.
func Compute(calls []CallRecord) *Snapshot {
	snap := &Snapshot{TotalAssigned: len(calls)}

	var respSum, resoSum time.Duration
	var respN, resoN int64
	for _, c := range calls {
		if c.Status == statusResolved {
			snap.Resolved++
		}
		if c.AcknowledgedAt != nil {
			respSum += c.AcknowledgedAt.Sub(c.CreatedAt)
			respN++
		}
		if c.ResolvedAt != nil {
			resoSum += c.ResolvedAt.Sub(c.CreatedAt)
			resoN++
		}
	}

	if snap.TotalAssigned > 0 {
		rate := float64(snap.Resolved) / float64(snap.TotalAssigned) * 100
		snap.ResolutionRate = math.Round(rate*100) / 100
	}
	if respN > 0 {
		snap.AvgResponseTime = (respSum / time.Duration(respN)).Truncate(time.Microsecond)
	}
	if resoN > 0 {
		snap.AvgResolutionTime = (resoSum / time.Duration(resoN)).Truncate(time.Microsecond)
	}
	return snap
}

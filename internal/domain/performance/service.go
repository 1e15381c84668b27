package performance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mbp/nursecall/internal/domain/directory"
	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/cache"
)

const defaultCacheTTL = 10 * time.Minute

type StaffDirectory interface {
	GetStaff(ctx context.Context, id uuid.UUID) (*directory.Staff, error)
	GetStaffByUser(ctx context.Context, userID uuid.UUID) (*directory.Staff, error)
	ListStaff(ctx context.Context, availableOnly bool, limit, offset int) ([]*directory.Staff, int, error)
}

type Service struct {
	recalc *Recalculator
	repo   Repository
	staff  StaffDirectory
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	log    zerolog.Logger
}

func NewService(recalc *Recalculator, repo Repository, staff StaffDirectory, c cache.Cache, log zerolog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		recalc: recalc,
		repo:   repo,
		staff:  staff,
		cache:  c,
		ttl:    defaultCacheTTL,
		log:    log.With().Str("component", "performance").Logger(),
	}
}

// Cached snapshots live under a per-staff generation. Invalidate moves the
// generation on, so a fill that read the database before a change lands under
// a key no reader asks for again.
func generationKey(staffID uuid.UUID) string { return "performance:gen:" + staffID.String() }

func cacheKey(staffID uuid.UUID, gen string) string {
	return "performance:" + staffID.String() + ":" + gen
}

// generation returns the current generation, "0" before the first
// invalidation, or "" when the cache cannot be read.
func (s *Service) generation(ctx context.Context, staffID uuid.UUID) string {
	var gen string
	found, err := s.cache.GetJSON(ctx, generationKey(staffID), &gen)
	if err != nil {
		s.log.Warn().Err(err).Str("staff_id", staffID.String()).Msg("performance cache read failed")
		return ""
	}
	if !found {
		return "0"
	}
	return gen
}

// Get returns the staff member's snapshot. With recompute it is rebuilt and
// persisted first; concurrent recomputes for one staff member share a single
// run that outlives any one caller's request. Otherwise the cached or stored
// snapshot is returned, falling back to an unpersisted computation when none
// was stored yet.
func (s *Service) Get(ctx context.Context, staffID uuid.UUID, recompute bool) (*Snapshot, error) {
	st, err := s.staff.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}

	if recompute {
		shared := context.WithoutCancel(ctx)
		v, err, _ := s.group.Do(staffID.String(), func() (interface{}, error) {
			gen := s.generation(shared, staffID)
			snap, err := s.recalc.Recalculate(shared, st, true)
			if err != nil {
				return nil, err
			}
			s.store(shared, snap, gen)
			return snap, nil
		})
		if err != nil {
			return nil, err
		}
		return v.(*Snapshot), nil
	}

	gen := s.generation(ctx, staffID)
	if gen != "" {
		var cached Snapshot
		if found, err := s.cache.GetJSON(ctx, cacheKey(staffID, gen), &cached); err != nil {
			s.log.Warn().Err(err).Str("staff_id", staffID.String()).Msg("performance cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	snap, err := s.repo.GetByStaff(ctx, staffID)
	if errors.Is(err, apperr.ErrNotFound) {
		snap, err = s.recalc.Recalculate(ctx, st, false)
	}
	if err != nil {
		return nil, err
	}
	s.store(ctx, snap, gen)
	return snap, nil
}

// store caches snap under gen, which must have been read before snap was.
func (s *Service) store(ctx context.Context, snap *Snapshot, gen string) {
	if gen == "" {
		return
	}
	if err := s.cache.SetJSON(ctx, cacheKey(snap.StaffID, gen), snap, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("staff_id", snap.StaffID.String()).Msg("performance cache write failed")
	}
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// RecalculateUsers persists fresh snapshots for the staff profiles of
// userIDs, skipping users without one, and returns the staff ids touched.
// It joins any transaction bound to ctx. Staff locks are taken in staff id
// order so two units of work sharing staff members cannot deadlock.
func (s *Service) RecalculateUsers(ctx context.Context, userIDs ...uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool, len(userIDs))
	var profiles []*directory.Staff
	for _, uid := range userIDs {
		if uid == uuid.Nil || seen[uid] {
			continue
		}
		seen[uid] = true

		st, err := s.staff.GetStaffByUser(ctx, uid)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, st)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return bytes.Compare(profiles[i].ID[:], profiles[j].ID[:]) < 0
	})

	touched := make([]uuid.UUID, 0, len(profiles))
	for _, st := range profiles {
		if _, err := s.recalc.Recalculate(ctx, st, true); err != nil {
			return nil, err
		}
		touched = append(touched, st.ID)
	}
	return touched, nil
}

// Invalidate starts a new cache generation for each staff member and drops
// the entry cached under the old one. The generation key never expires. Failures are
// logged only.
func (s *Service) Invalidate(ctx context.Context, staffIDs ...uuid.UUID) {
	for _, id := range staffIDs {
		prev := s.generation(ctx, id)
		if err := s.cache.SetJSON(ctx, generationKey(id), uuid.NewString(), 0); err != nil {
			s.log.Warn().Err(err).Str("staff_id", id.String()).Msg("performance cache invalidation failed")
			continue
		}
		if prev == "" {
			continue
		}
		if err := s.cache.Delete(ctx, cacheKey(id, prev)); err != nil {
			s.log.Debug().Err(err).Str("staff_id", id.String()).Msg("retired performance cache entry not dropped")
		}
	}
}

// RecalculateAll rebuilds and persists every staff snapshot.
func (s *Service) RecalculateAll(ctx context.Context) (int, error) {
	const page = 100
	count := 0
	for offset := 0; ; offset += page {
		items, total, err := s.staff.ListStaff(ctx, false, page, offset)
		if err != nil {
			return count, err
		}
		for _, st := range items {
			if _, err := s.recalc.Recalculate(ctx, st, true); err != nil {
				return count, fmt.Errorf("staff %s: %w", st.ID, err)
			}
			s.Invalidate(ctx, st.ID)
			count++
		}
		if offset+page >= total || len(items) == 0 {
			return count, nil
		}
	}
}

package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mbp/nursecall/internal/platform/apperr"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Notification
	keys  map[string]bool
	order []uuid.UUID
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[uuid.UUID]*Notification), keys: make(map[string]bool)}
}

func dedupKey(n *Notification) string {
	user, role, em := "", "", ""
	if n.UserID != nil {
		user = n.UserID.String()
	}
	if n.Role != nil {
		role = *n.Role
	}
	if n.EmergencyID != nil {
		em = n.EmergencyID.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", user, role, em, n.Type, n.EventKey)
}

func (m *mockRepo) InsertBatch(_ context.Context, items []*Notification) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	written := 0
	for _, n := range items {
		k := dedupKey(n)
		if m.keys[k] {
			continue
		}
		m.keys[k] = true
		n.ID = uuid.New()
		n.CreatedAt = time.Now()
		m.rows[n.ID] = n
		m.order = append(m.order, n.ID)
		written++
	}
	return written, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("notification %s", id)
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) ListForRecipient(_ context.Context, userID uuid.UUID, roles []string, isRead *bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, id := range m.order {
		n := m.rows[id]
		if !n.VisibleTo(userID, roles) {
			continue
		}
		if isRead != nil && n.IsRead != *isRead {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (m *mockRepo) SetRead(_ context.Context, id uuid.UUID, isRead bool) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("notification %s", id)
	}
	n.IsRead = isRead
	if isRead {
		if n.ReadAt == nil {
			now := time.Now()
			n.ReadAt = &now
		}
	} else {
		n.ReadAt = nil
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) Stats(_ context.Context, userID uuid.UUID, roles []string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, n := range m.rows {
		if !n.VisibleTo(userID, roles) {
			continue
		}
		s.Total++
		if n.IsRead {
			s.Read++
		} else {
			s.Unread++
		}
	}
	return &s, nil
}

func (m *mockRepo) all() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Notification, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rows[id])
	}
	return out
}

type mockDirectory struct {
	byRole    map[string][]uuid.UUID
	available []uuid.UUID
	err       error
}

func (d *mockDirectory) UserIDsWithRole(_ context.Context, role string) ([]uuid.UUID, error) {
	return d.byRole[role], d.err
}

func (d *mockDirectory) AvailableStaffUserIDs(_ context.Context) ([]uuid.UUID, error) {
	return d.available, d.err
}

func newIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func newTestDispatcher(dir *mockDirectory) (*Dispatcher, *mockRepo) {
	repo := newMockRepo()
	return NewDispatcher(repo, dir, zerolog.Nop()), repo
}

// -- Tests --

func TestDispatch_AllAvailableStaff(t *testing.T) {
	staff := newIDs(4)
	d, repo := newTestDispatcher(&mockDirectory{available: staff})
	emergencyID := uuid.New()

	n, err := d.Dispatch(context.Background(), AllAvailableStaff(), "New emergency in Room R101", TypeNewCall, &emergencyID, "created")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rows, got %d", n)
	}

	seen := map[uuid.UUID]bool{}
	for _, row := range repo.all() {
		if row.Type != TypeNewCall || row.UserID == nil || row.Role != nil || *row.EmergencyID != emergencyID {
			t.Errorf("unexpected row %+v", row)
		}
		seen[*row.UserID] = true
	}
	for _, id := range staff {
		if !seen[id] {
			t.Errorf("staff %s not notified", id)
		}
	}
}

func TestDispatch_DuplicatesDropped(t *testing.T) {
	staff := newIDs(3)
	d, repo := newTestDispatcher(&mockDirectory{available: staff})
	emergencyID := uuid.New()
	ctx := context.Background()

	_, _ = d.Dispatch(ctx, AllAvailableStaff(), "m", TypeNewCall, &emergencyID, "created")
	n, err := d.Dispatch(ctx, AllAvailableStaff(), "m", TypeNewCall, &emergencyID, "created")
	if err != nil {
		t.Fatalf("expected duplicates to be ignored, got %v", err)
	}
	if n != 0 || len(repo.all()) != 3 {
		t.Errorf("expected no new rows, wrote %d, total %d", n, len(repo.all()))
	}

	// A different event for the same emergency and type is not a duplicate.
	n, _ = d.Dispatch(ctx, AllAvailableStaff(), "m", TypeNewCall, &emergencyID, "created-again")
	if n != 3 {
		t.Errorf("expected 3 rows for a new event key, got %d", n)
	}
}

func TestDispatch_ConcurrentDuplicatesTolerated(t *testing.T) {
	staff := newIDs(5)
	d, repo := newTestDispatcher(&mockDirectory{available: staff})
	emergencyID := uuid.New()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), AllAvailableStaff(), "m", TypeReminder, &emergencyID, "notify"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if got := len(repo.all()); got != 5 {
		t.Errorf("expected exactly 5 rows, got %d", got)
	}
}

func TestDispatch_RoleIsNotExpanded(t *testing.T) {
	dir := &mockDirectory{byRole: map[string][]uuid.UUID{"charge_nurse": newIDs(3)}}
	d, repo := newTestDispatcher(dir)

	n, err := d.Dispatch(context.Background(), Role("charge_nurse"), "escalated", TypeEscalation, nil, "esc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := repo.all()
	if n != 1 || len(rows) != 1 {
		t.Fatalf("expected a single role row, got %d", len(rows))
	}
	if rows[0].UserID != nil || rows[0].Role == nil || *rows[0].Role != "charge_nurse" {
		t.Errorf("unexpected row %+v", rows[0])
	}
}

func TestDispatch_AllStaffWithRoleExpands(t *testing.T) {
	admins := newIDs(2)
	d, repo := newTestDispatcher(&mockDirectory{byRole: map[string][]uuid.UUID{"admin": admins}})

	n, err := d.Dispatch(context.Background(), AllStaffWithRole("admin"), "resolved", TypeUpdate, nil, "resolve")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	for _, row := range repo.all() {
		if row.UserID == nil || row.Role == nil || *row.Role != "admin" {
			t.Errorf("expected user row tagged with role, got %+v", row)
		}
	}
}

func TestDispatch_SingleUser(t *testing.T) {
	d, repo := newTestDispatcher(&mockDirectory{})
	user := uuid.New()
	if n, _ := d.Dispatch(context.Background(), SingleUser(user), "assigned", TypeAssignment, nil, "k"); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	if row := repo.all()[0]; *row.UserID != user {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestDispatch_NoRecipients(t *testing.T) {
	d, repo := newTestDispatcher(&mockDirectory{})
	n, err := d.Dispatch(context.Background(), AllAvailableStaff(), "m", TypeNewCall, nil, "k")
	if err != nil || n != 0 || len(repo.all()) != 0 {
		t.Errorf("expected nothing written, n=%d err=%v", n, err)
	}
}

func TestDispatch_Errors(t *testing.T) {
	boom := errors.New("directory down")
	d, _ := newTestDispatcher(&mockDirectory{err: boom})
	if _, err := d.Dispatch(context.Background(), AllAvailableStaff(), "m", TypeNewCall, nil, "k"); !errors.Is(err, boom) {
		t.Errorf("expected directory error, got %v", err)
	}

	d, repo := newTestDispatcher(&mockDirectory{})
	repo.err = errors.New("insert failed")
	if _, err := d.Dispatch(context.Background(), SingleUser(uuid.New()), "m", TypeInfo, nil, "k"); !errors.Is(err, repo.err) {
		t.Errorf("expected insert error, got %v", err)
	}

	if _, err := d.Dispatch(context.Background(), SingleUser(uuid.New()), "m", Type("pager"), nil, "k"); err == nil {
		t.Error("expected unknown type rejected")
	}
}

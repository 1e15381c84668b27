package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mbp/nursecall/internal/domain/directory"
	"github.com/mbp/nursecall/internal/domain/emergency"
	"github.com/mbp/nursecall/internal/domain/notification"
	"github.com/mbp/nursecall/internal/domain/performance"
	"github.com/mbp/nursecall/internal/platform/auth"
	"github.com/mbp/nursecall/internal/platform/cache"
	"github.com/mbp/nursecall/internal/platform/db"
	"github.com/mbp/nursecall/internal/platform/events"
	tmpl "github.com/mbp/nursecall/internal/platform/notification"
)

// databaseURLEnv points the suite at an existing, empty database instead of a
// throwaway container.
const databaseURLEnv = "NURSECALL_TEST_DATABASE_URL"

// globalPool is shared by every test; migrations are applied once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv(databaseURLEnv)
	cleanup := func() {}
	if connStr == "" {
		if _, err := exec.LookPath("docker"); err != nil {
			fmt.Fprintf(os.Stderr, "skipping integration tests: set %s or install docker\n", databaseURLEnv)
			os.Exit(0)
		}
		var err error
		connStr, cleanup, err = startPostgresContainer(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
			os.Exit(1)
		}
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates migrations/ relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

type recipients struct {
	users directory.UserRepository
	staff directory.StaffRepository
}

func (r recipients) UserIDsWithRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	return r.users.ListIDsByRole(ctx, role)
}

func (r recipients) AvailableStaffUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.staff.ListAvailableUserIDs(ctx)
}

// app is the service graph wired against the test database the way the
// server wires it.
type app struct {
	directory    *directory.Service
	notification *notification.Service
	dispatcher   *notification.Dispatcher
	performance  *performance.Service
	perfRepo     performance.Repository
	emergency    *emergency.Service
	emRepo       emergency.Repository
	notes        notification.Repository
	tx           *db.TxManager
	admin        auth.Actor
}

func newApp(t *testing.T) *app {
	t.Helper()
	pool := globalPool
	log := zerolog.Nop()
	tx := db.NewTxManager(pool)
	templates := tmpl.NewTemplateEngine()

	users := directory.NewUserRepoPG(pool)
	staff := directory.NewStaffRepoPG(pool)
	notes := notification.NewRepoPG(pool)
	dispatcher := notification.NewDispatcher(notes, recipients{users: users, staff: staff}, log)
	notifSvc := notification.NewService(notes, dispatcher, templates, log)
	dirSvc := directory.NewService(users, directory.NewPatientRepoPG(pool), directory.NewRoomRepoPG(pool), staff, tx, notifSvc, log)

	perfRepo := performance.NewRepoPG(pool)
	perfSvc := performance.NewService(performance.NewRecalculator(perfRepo, tx), perfRepo, dirSvc, cache.NewMemory(), log)
	emRepo := emergency.NewRepoPG(pool)
	emSvc := emergency.NewService(emRepo, dirSvc, dispatcher, perfSvc, tx, events.NopPublisher{}, templates, log)

	a := &app{
		directory: dirSvc, notification: notifSvc, dispatcher: dispatcher,
		performance: perfSvc, perfRepo: perfRepo,
		emergency: emSvc, emRepo: emRepo, notes: notes, tx: tx,
	}
	admin := a.user(t, "Charge Admin", auth.RoleAdmin)
	a.admin = auth.Actor{UserID: admin.ID, Roles: []string{auth.RoleAdmin}}
	return a
}

func unique() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:10] }

func (a *app) user(t *testing.T, name, role string) *directory.User {
	t.Helper()
	u := &directory.User{Email: "u" + unique() + "@ward.test", FullName: name + " " + unique(), Role: role}
	if err := a.directory.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// nurse creates a staff user with an available staff profile.
func (a *app) nurse(t *testing.T) (*directory.User, *directory.Staff) {
	t.Helper()
	u := a.user(t, "Nurse", auth.RoleStaff)
	st := &directory.Staff{UserID: u.ID, IsAvailable: true}
	if err := a.directory.CreateStaff(context.Background(), st); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return u, st
}

func (a *app) room(t *testing.T) *directory.Room {
	t.Helper()
	r := &directory.Room{RoomNumber: "R" + unique()}
	if err := a.directory.CreateRoom(context.Background(), r); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func (a *app) call(t *testing.T) *emergency.Emergency {
	t.Helper()
	e, err := a.emergency.Create(context.Background(), a.admin, emergency.CreateRequest{
		RoomID: a.room(t).ID, Description: "patient call", Priority: emergency.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("create emergency: %v", err)
	}
	return e
}

func (a *app) transition(t *testing.T, actor auth.Actor, id uuid.UUID, req emergency.TransitionRequest) *emergency.Emergency {
	t.Helper()
	e, err := a.emergency.Transition(context.Background(), actor, id, req)
	if err != nil {
		t.Fatalf("%s: %v", req.Action, err)
	}
	return e
}

func staffActor(u *directory.User) auth.Actor {
	return auth.Actor{UserID: u.ID, Roles: []string{auth.RoleStaff}}
}

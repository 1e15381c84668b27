package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mbp/nursecall/internal/platform/apperr"
)

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

// OccupancyNotifier fans out room_update notifications after a room's
// occupancy changes. eventKey identifies the change for deduplication.
type OccupancyNotifier interface {
	NotifyRoomUpdate(ctx context.Context, roomNumber string, occupied bool, eventKey string) error
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	users    UserRepository
	patients PatientRepository
	rooms    RoomRepository
	staff    StaffRepository
	tx       TxRunner
	notifier OccupancyNotifier
	log      zerolog.Logger
}

func NewService(users UserRepository, patients PatientRepository, rooms RoomRepository, staff StaffRepository,
	tx TxRunner, notifier OccupancyNotifier, log zerolog.Logger) *Service {
	return &Service{
		users:    users,
		patients: patients,
		rooms:    rooms,
		staff:    staff,
		tx:       tx,
		notifier: notifier,
		log:      log.With().Str("component", "directory").Logger(),
	}
}

// -- Users --

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	u.FullName = strings.TrimSpace(u.FullName)
	u.Role = strings.TrimSpace(u.Role)
	if !emailPattern.MatchString(u.Email) {
		return apperr.Validation("valid email is required")
	}
	if u.Role == "" {
		u.Role = "staff"
	}
	u.IsActive = true

	base := u.FullName
	if base == "" {
		base, _, _ = strings.Cut(u.Email, "@")
	}
	return s.createWithSlug(ctx, Slugify(base), s.users.SlugExists, func(slug string) error {
		u.Slug = slug
		return s.users.Create(ctx, u)
	})
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// UserIDsWithRole returns every active user holding role.
func (s *Service) UserIDsWithRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	return s.users.ListIDsByRole(ctx, role)
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.MedicalRecordNumber = strings.TrimSpace(p.MedicalRecordNumber)
	if p.FullName == "" {
		return apperr.Validation("full_name is required")
	}
	if p.MedicalRecordNumber == "" {
		return apperr.Validation("medical_record_number is required")
	}
	if p.Gender != nil {
		g := strings.ToLower(*p.Gender)
		if !validGenders[g] {
			return apperr.Validation("gender must be one of male, female, other, unknown")
		}
		p.Gender = &g
	}
	return s.createWithSlug(ctx, Slugify(p.FullName), s.patients.SlugExists, func(slug string) error {
		p.Slug = slug
		return s.patients.Create(ctx, p)
	})
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// createWithSlug picks a free slug and inserts. A concurrent insert that
// wins the same slug makes the unique index reject ours; pick again.
func (s *Service) createWithSlug(ctx context.Context, base string, exists func(context.Context, string) (bool, error), insert func(slug string) error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		var slug string
		slug, err = uniqueSlug(ctx, base, exists)
		if err != nil {
			return err
		}
		if err = insert(slug); !errors.Is(err, ErrSlugTaken) {
			return err
		}
	}
	return err
}

// -- Rooms --

func (s *Service) CreateRoom(ctx context.Context, r *Room) error {
	r.RoomNumber = strings.TrimSpace(r.RoomNumber)
	if r.RoomNumber == "" {
		return apperr.Validation("room_number is required")
	}
	if r.BedCount == 0 {
		r.BedCount = 1
	}
	if r.BedCount < 1 {
		return apperr.Validation("bed_count must be at least 1")
	}
	return s.rooms.Create(ctx, r)
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return s.rooms.List(ctx, limit, offset)
}

// SetLastCallPriority records the priority of the newest call in the room.
// Emergency intake is its only caller.
func (s *Service) SetLastCallPriority(ctx context.Context, roomID uuid.UUID, priority string) error {
	return s.rooms.SetLastCallPriority(ctx, roomID, priority)
}

// AssignPatient places patientID in the room. Re-assigning the current
// occupant is a no-op; a room held by someone else must be vacated first.
func (s *Service) AssignPatient(ctx context.Context, roomID, patientID uuid.UUID) (*Room, error) {
	var room *Room
	changed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, patientID); err != nil {
			return err
		}
		current, err := s.rooms.GetForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if current.PatientID != nil {
			if *current.PatientID == patientID {
				room = current
				return nil
			}
			return apperr.Conflict("room %s is occupied by another patient", current.RoomNumber)
		}
		room, err = s.rooms.SetOccupancy(ctx, roomID, &patientID)
		changed = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.announceOccupancy(ctx, room)
	}
	return room, nil
}

// VacateRoom clears the room's occupant. Vacating an empty room is a no-op.
func (s *Service) VacateRoom(ctx context.Context, roomID uuid.UUID) (*Room, error) {
	var room *Room
	changed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.rooms.GetForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if current.PatientID == nil && !current.IsOccupied {
			room = current
			return nil
		}
		room, err = s.rooms.SetOccupancy(ctx, roomID, nil)
		changed = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.announceOccupancy(ctx, room)
	}
	return room, nil
}

func (s *Service) announceOccupancy(ctx context.Context, room *Room) {
	if s.notifier == nil {
		return
	}
	key := fmt.Sprintf("room-%s-%d", room.ID, room.UpdatedAt.UnixNano())
	if err := s.notifier.NotifyRoomUpdate(ctx, room.RoomNumber, room.IsOccupied, key); err != nil {
		s.log.Warn().Err(err).Str("room_id", room.ID.String()).Msg("room update notification failed")
	}
}

// -- Staff --

func (s *Service) CreateStaff(ctx context.Context, st *Staff) error {
	if st.UserID == uuid.Nil {
		return apperr.Validation("user_id is required")
	}
	if !validShiftTime(st.ShiftStart) || !validShiftTime(st.ShiftEnd) {
		return apperr.Validation("shift times must be HH:MM")
	}
	if _, err := s.users.GetByID(ctx, st.UserID); err != nil {
		return err
	}
	return s.staff.Create(ctx, st)
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) GetStaffByUser(ctx context.Context, userID uuid.UUID) (*Staff, error) {
	return s.staff.GetByUserID(ctx, userID)
}

func (s *Service) ListStaff(ctx context.Context, availableOnly bool, limit, offset int) ([]*Staff, int, error) {
	return s.staff.List(ctx, availableOnly, limit, offset)
}

func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Staff, error) {
	return s.staff.SetAvailability(ctx, id, available)
}

// AvailableStaffUserIDs snapshots who is on the floor right now.
func (s *Service) AvailableStaffUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.staff.ListAvailableUserIDs(ctx)
}

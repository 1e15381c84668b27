package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/db"
)

// ErrSlugTaken is returned when a concurrent insert claimed the slug first.
var ErrSlugTaken = apperr.Validation("slug already taken")

var uniqueFields = map[string]string{
	"app_user_email_key":   "email already registered",
	"room_room_number_key": "room number already exists",
	"patient_mrn_key":      "medical record number already exists",
	"staff_user_id_key":    "user already has a staff profile",
}

// translateErr maps storage errors onto apperr kinds.
func translateErr(err error, what string, id uuid.UUID) error {
	if err == nil {
		return nil
	}
	if db.IsNoRows(err) {
		return apperr.NotFound("%s %s", what, id)
	}
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "app_user_slug_key", "patient_slug_key":
			return fmt.Errorf("%s: %w", what, ErrSlugTaken)
		}
		if msg, known := uniqueFields[constraint]; known {
			return apperr.Validation("%s", msg)
		}
		return apperr.Validation("%s violates %s", what, constraint)
	}
	return err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const userCols = `id, email, full_name, slug, role, is_active, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Slug, &u.Role, &u.IsActive, &u.CreatedAt)
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, email, full_name, slug, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		u.ID, u.Email, u.FullName, u.Slug, u.Role, u.IsActive).Scan(&u.CreatedAt)
	return translateErr(err, "user", u.ID)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
	if err != nil {
		return nil, translateErr(err, "user", id)
	}
	return u, nil
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM app_user ORDER BY full_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanUser)
	return items, total, err
}

func (r *userRepoPG) ListIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id FROM app_user WHERE role = $1 AND is_active ORDER BY id`, role)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *userRepoPG) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM app_user WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, full_name, medical_record_number, slug, date_of_birth, gender, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.MedicalRecordNumber, &p.Slug, &p.DateOfBirth, &p.Gender,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, full_name, medical_record_number, slug, date_of_birth, gender)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.MedicalRecordNumber, p.Slug, p.DateOfBirth, p.Gender).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translateErr(err, "patient", p.ID)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, translateErr(err, "patient", id)
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY full_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanPatient)
	return items, total, err
}

func (r *patientRepoPG) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// =========== Room Repository ===========

type roomRepoPG struct{ pool *pgxpool.Pool }

func NewRoomRepoPG(pool *pgxpool.Pool) RoomRepository { return &roomRepoPG{pool: pool} }

func (r *roomRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const roomCols = `id, room_number, floor, ward, bed_count, is_occupied, patient_id, last_call_priority, created_at, updated_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.RoomNumber, &rm.Floor, &rm.Ward, &rm.BedCount, &rm.IsOccupied,
		&rm.PatientID, &rm.LastCallPriority, &rm.CreatedAt, &rm.UpdatedAt)
	return &rm, err
}

func (r *roomRepoPG) Create(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO room (id, room_number, floor, ward, bed_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING is_occupied, created_at, updated_at`,
		rm.ID, rm.RoomNumber, rm.Floor, rm.Ward, rm.BedCount).Scan(&rm.IsOccupied, &rm.CreatedAt, &rm.UpdatedAt)
	return translateErr(err, "room", rm.ID)
}

func (r *roomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	rm, err := scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
	if err != nil {
		return nil, translateErr(err, "room", id)
	}
	return rm, nil
}

func (r *roomRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Room, error) {
	rm, err := scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translateErr(err, "room", id)
	}
	return rm, nil
}

func (r *roomRepoPG) List(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM room`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+roomCols+` FROM room ORDER BY room_number LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanRoom)
	return items, total, err
}

func (r *roomRepoPG) SetOccupancy(ctx context.Context, id uuid.UUID, patientID *uuid.UUID) (*Room, error) {
	rm, err := scanRoom(r.conn(ctx).QueryRow(ctx, `
		UPDATE room SET patient_id = $2, is_occupied = ($2::uuid IS NOT NULL), updated_at = NOW()
		WHERE id = $1
		RETURNING `+roomCols, id, patientID))
	if err != nil {
		return nil, translateErr(err, "room", id)
	}
	return rm, nil
}

func (r *roomRepoPG) SetLastCallPriority(ctx context.Context, id uuid.UUID, priority string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE room SET last_call_priority = $2, updated_at = NOW() WHERE id = $1`, id, priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("room %s", id)
	}
	return nil
}

// =========== Staff Repository ===========

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffRepoPG(pool *pgxpool.Pool) StaffRepository { return &staffRepoPG{pool: pool} }

func (r *staffRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const staffCols = `id, user_id, department, contact_number, is_available, shift_start, shift_end, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.UserID, &s.Department, &s.ContactNumber, &s.IsAvailable,
		&s.ShiftStart, &s.ShiftEnd, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff (id, user_id, department, contact_number, is_available, shift_start, shift_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.Department, s.ContactNumber, s.IsAvailable, s.ShiftStart, s.ShiftEnd).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	return translateErr(err, "staff", s.ID)
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
	if err != nil {
		return nil, translateErr(err, "staff", id)
	}
	return s, nil
}

func (r *staffRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("staff for user %s", userID)
		}
		return nil, err
	}
	return s, nil
}

func (r *staffRepoPG) List(ctx context.Context, availableOnly bool, limit, offset int) ([]*Staff, int, error) {
	where := ``
	if availableOnly {
		where = ` WHERE is_available`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+staffCols+` FROM staff`+where+` ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanStaff)
	return items, total, err
}

func (r *staffRepoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `
		UPDATE staff SET is_available = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+staffCols, id, available))
	if err != nil {
		return nil, translateErr(err, "staff", id)
	}
	return s, nil
}

func (r *staffRepoPG) ListAvailableUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.user_id FROM staff s
		JOIN app_user u ON u.id = s.user_id
		WHERE s.is_available AND u.is_active
		ORDER BY s.user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

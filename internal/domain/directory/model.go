package directory

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// User is an account that can act on emergencies. Role is the role name
// (admin, staff, charge_nurse, ...); role CRUD lives with the identity layer.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Slug      string    `db:"slug" json:"slug"`
	Role      string    `db:"role" json:"role"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Patient struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	FullName            string     `db:"full_name" json:"full_name"`
	MedicalRecordNumber string     `db:"medical_record_number" json:"medical_record_number"`
	Slug                string     `db:"slug" json:"slug"`
	DateOfBirth         *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender              *string    `db:"gender" json:"gender,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Room is a bed space. IsOccupied/PatientID change only through
// Service.AssignPatient and Service.VacateRoom; LastCallPriority is written
// only when an emergency is raised in the room.
type Room struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	RoomNumber       string     `db:"room_number" json:"room_number"`
	Floor            *string    `db:"floor" json:"floor,omitempty"`
	Ward             *string    `db:"ward" json:"ward,omitempty"`
	BedCount         int        `db:"bed_count" json:"bed_count"`
	IsOccupied       bool       `db:"is_occupied" json:"is_occupied"`
	PatientID        *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	LastCallPriority *string    `db:"last_call_priority" json:"last_call_priority,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Staff is the on-floor profile of a User (1:1).
type Staff struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	Department    *string   `db:"department" json:"department,omitempty"`
	ContactNumber *string   `db:"contact_number" json:"contact_number,omitempty"`
	IsAvailable   bool      `db:"is_available" json:"is_available"`
	ShiftStart    *string   `db:"shift_start" json:"shift_start,omitempty"`
	ShiftEnd      *string   `db:"shift_end" json:"shift_end,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	shiftPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

func validShiftTime(s *string) bool {
	return s == nil || shiftPattern.MatchString(*s)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

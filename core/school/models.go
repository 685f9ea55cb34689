package school

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status is a student's attendance status for one session. The literal
// values are part of the wire format.
type Status string

const (
	StatusPresente    Status = "Presente"
	StatusAusente     Status = "Ausente"
	StatusJustificado Status = "Justificado"
	StatusTarde       Status = "Tarde"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresente, StatusAusente, StatusJustificado, StatusTarde:
		return true
	}
	return false
}

// SessionLabel returns the auto-assigned name of the n-th session of a group.
func SessionLabel(n int) string {
	return fmt.Sprintf("Sesión %d", n)
}

type (
	// Subject is a course owned by exactly one instructor.
	Subject struct {
		ID        uuid.UUID `json:"id"`
		OwnerID   uuid.UUID `json:"-"`
		Nombre    string    `json:"nombre"`
		Codigo    string    `json:"codigo"`
		CreatedAt time.Time `json:"-"`
		UpdatedAt time.Time `json:"-"`
	}

	// Group is a section/cohort within a Subject; ownership is inherited
	// through the Subject.
	Group struct {
		ID        uuid.UUID `json:"id"`
		SubjectID uuid.UUID `json:"materia"`
		Nombre    string    `json:"nombre"`
		CreatedAt time.Time `json:"-"`
		UpdatedAt time.Time `json:"-"`
	}

	// Student is a global identity, not owned by any instructor; the
	// matricula (student number) is the sole de-duplication key.
	Student struct {
		ID             uuid.UUID `json:"id"`
		NombreCompleto string    `json:"nombre"`
		Matricula      string    `json:"studentId"`
		CreatedAt      time.Time `json:"-"`
		UpdatedAt      time.Time `json:"-"`
	}

	// Enrollment is the membership of a Student in a Group; at most one per
	// (student, group) pair.
	Enrollment struct {
		ID        uuid.UUID
		StudentID uuid.UUID
		GroupID   uuid.UUID
	}

	// Session is one dated meeting of a Group.
	Session struct {
		ID          uuid.UUID          `json:"id"`
		GroupID     uuid.UUID          `json:"grupo"`
		Fecha       time.Time          `json:"fecha"`
		Nombre      string             `json:"nombre"`
		Asistencias []AttendanceRecord `json:"asistencias"`
		CreatedAt   time.Time          `json:"-"`
		UpdatedAt   time.Time          `json:"-"`
	}

	// AttendanceRecord is a Student's status for one Session; at most one
	// per (session, student) pair.
	AttendanceRecord struct {
		ID        uuid.UUID `json:"-"`
		SessionID uuid.UUID `json:"-"`
		StudentID uuid.UUID `json:"studentId"`
		Status    Status    `json:"status"`
	}
)

// Inputs

type NewSubject struct {
	Nombre string `json:"nombre" validate:"required"`
	Codigo string `json:"codigo" validate:"required"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

type UpdateSubject struct {
	Nombre string `json:"nombre"`
	Codigo string `json:"codigo"`
}

type NewGroup struct {
	SubjectID uuid.UUID `json:"materia" validate:"required"`
	Nombre    string    `json:"nombre" validate:"required"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	return validate.Struct(ng)
}

type UpdateGroup struct {
	Nombre string `json:"nombre"`
}

// NewEnrollment is the payload of the enroll workflow: the target group, the
// student number and, when the student does not exist yet, the full name.
type NewEnrollment struct {
	GroupID   uuid.UUID `json:"grupo" validate:"required"`
	Matricula string    `json:"studentId" validate:"required"`
	Nombre    string    `json:"nombre"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

type UpdateStudent struct {
	Nombre    string `json:"nombre"`
	Matricula string `json:"studentId"`
}

// NewAttendance is one entry of the attendance list submitted with a new
// session. Entries missing either field (or carrying an unknown status) are
// skipped, not rejected.
type NewAttendance struct {
	StudentID uuid.UUID `json:"studentId"`
	Status    Status    `json:"status"`
}

func (na NewAttendance) WellFormed() bool {
	return na.StudentID != uuid.Nil && na.Status.Valid()
}

type NewSession struct {
	GroupID     uuid.UUID       `json:"grupo" validate:"required"`
	Fecha       time.Time       `json:"fecha" validate:"required"`
	Nombre      string          `json:"nombre"`
	Asistencias []NewAttendance `json:"asistencias"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

type UpdateSession struct {
	Fecha  time.Time `json:"fecha"`
	Nombre string    `json:"nombre"`
}

package school

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
)

type (
	// Repository is the persistence contract of the attendance domain.
	// Every method taking an ownerID only sees entities reachable through
	// the chain Group -> Subject -> owner; anything else reports
	// core.ErrNotFound. Writes racing on a uniqueness invariant report
	// core.ErrConflict.
	Repository interface {
		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		QuerySubjects(ctx context.Context, ownerID uuid.UUID, orderings ...core.DBOrdering) ([]Subject, error)
		GetSubject(ctx context.Context, ownerID, id uuid.UUID) (Subject, error)
		UpdateSubject(ctx context.Context, sub Subject) (Subject, error)
		DeleteSubject(ctx context.Context, ownerID, id uuid.UUID) error

		CreateGroup(ctx context.Context, grp Group) (Group, error)
		QueryGroups(ctx context.Context, ownerID uuid.UUID) ([]Group, error)
		QuerySubjectGroups(ctx context.Context, subjectID uuid.UUID) ([]Group, error)
		GetGroup(ctx context.Context, ownerID, id uuid.UUID) (Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		DeleteGroup(ctx context.Context, ownerID, id uuid.UUID) error

		CreateStudent(ctx context.Context, stu Student) (Student, error)
		QueryStudents(ctx context.Context, ownerID uuid.UUID, orderings ...core.DBOrdering) ([]Student, error)
		QueryGroupStudents(ctx context.Context, groupID uuid.UUID) ([]Student, error)
		GetStudent(ctx context.Context, ownerID, id uuid.UUID) (Student, error)
		GetStudentByMatricula(ctx context.Context, matricula string) (Student, error)
		UpdateStudent(ctx context.Context, stu Student) (Student, error)
		DeleteStudent(ctx context.Context, ownerID, id uuid.UUID) error

		// GetOrCreateEnrollment returns the existing enrollment for the
		// (student, group) pair if there is one; a lost creation race is
		// resolved by re-reading the winner's row.
		GetOrCreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)

		// CreateSessionWithAttendance runs as one transaction: the session is
		// created (auto-labelled from the group's monotonic counter when
		// Nombre is empty) along with its attendance records, in order. On a
		// duplicate (session, student) pair the records inserted so far are
		// kept and core.ErrConflict is reported.
		CreateSessionWithAttendance(ctx context.Context, ses Session) (Session, error)
		QuerySessions(ctx context.Context, ownerID uuid.UUID) ([]Session, error)
		QueryGroupSessions(ctx context.Context, groupID uuid.UUID) ([]Session, error)
		GetSession(ctx context.Context, ownerID, id uuid.UUID) (Session, error)
		UpdateSession(ctx context.Context, ses Session) (Session, error)
		DeleteSession(ctx context.Context, ownerID, id uuid.UUID) error
	}

	Service interface {
		QuerySubjects(ctx context.Context, instructorID uuid.UUID, orderings ...core.DBOrdering) ([]Subject, error)
		GetSubject(ctx context.Context, instructorID, id uuid.UUID) (Subject, error)
		CreateSubject(ctx context.Context, instructorID uuid.UUID, ns NewSubject) (Subject, error)
		UpdateSubject(ctx context.Context, instructorID, id uuid.UUID, us UpdateSubject) (Subject, error)
		DeleteSubject(ctx context.Context, instructorID, id uuid.UUID) error

		QueryGroups(ctx context.Context, instructorID uuid.UUID) ([]Group, error)
		QuerySubjectGroups(ctx context.Context, instructorID, subjectID uuid.UUID) ([]Group, error)
		GetGroup(ctx context.Context, instructorID, id uuid.UUID) (Group, error)
		CreateGroup(ctx context.Context, instructorID uuid.UUID, ng NewGroup) (Group, error)
		UpdateGroup(ctx context.Context, instructorID, id uuid.UUID, ug UpdateGroup) (Group, error)
		DeleteGroup(ctx context.Context, instructorID, id uuid.UUID) error

		QueryStudents(ctx context.Context, instructorID uuid.UUID, orderings ...core.DBOrdering) ([]Student, error)
		QueryGroupStudents(ctx context.Context, instructorID, groupID uuid.UUID) ([]Student, error)
		GetStudent(ctx context.Context, instructorID, id uuid.UUID) (Student, error)
		UpdateStudent(ctx context.Context, instructorID, id uuid.UUID, us UpdateStudent) (Student, error)
		DeleteStudent(ctx context.Context, instructorID, id uuid.UUID) error
		Enroll(ctx context.Context, instructorID uuid.UUID, ne NewEnrollment) (Student, error)

		QuerySessions(ctx context.Context, instructorID uuid.UUID) ([]Session, error)
		QueryGroupSessions(ctx context.Context, instructorID, groupID uuid.UUID) ([]Session, error)
		GetSession(ctx context.Context, instructorID, id uuid.UUID) (Session, error)
		UpdateSession(ctx context.Context, instructorID, id uuid.UUID, us UpdateSession) (Session, error)
		DeleteSession(ctx context.Context, instructorID, id uuid.UUID) error
		RecordSession(ctx context.Context, instructorID uuid.UUID, ns NewSession) (Session, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Subjects

func (svc *service) QuerySubjects(ctx context.Context, instructorID uuid.UUID, orderings ...core.DBOrdering) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, instructorID, orderings...)
}

func (svc *service) GetSubject(ctx context.Context, instructorID, id uuid.UUID) (Subject, error) {
	return svc.repo.GetSubject(ctx, instructorID, id)
}

// CreateSubject force-assigns the caller as owner; any caller-supplied owner
// is ignored.
func (svc *service) CreateSubject(ctx context.Context, instructorID uuid.UUID, ns NewSubject) (Subject, error) {
	now := time.Now().UTC()
	sub := Subject{
		ID:        uuid.New(),
		OwnerID:   instructorID,
		Nombre:    core.CleanString(ns.Nombre),
		Codigo:    core.CleanString(ns.Codigo),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateSubject(ctx, sub)
}

func (svc *service) UpdateSubject(ctx context.Context, instructorID, id uuid.UUID, us UpdateSubject) (Subject, error) {
	sub, err := svc.repo.GetSubject(ctx, instructorID, id)
	if err != nil {
		return Subject{}, err
	}
	if nombre := core.CleanString(us.Nombre); nombre != "" {
		sub.Nombre = nombre
	}
	if codigo := core.CleanString(us.Codigo); codigo != "" {
		sub.Codigo = codigo
	}
	sub.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, sub)
}

func (svc *service) DeleteSubject(ctx context.Context, instructorID, id uuid.UUID) error {
	return svc.repo.DeleteSubject(ctx, instructorID, id)
}

// Groups

func (svc *service) QueryGroups(ctx context.Context, instructorID uuid.UUID) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, instructorID)
}

func (svc *service) QuerySubjectGroups(ctx context.Context, instructorID, subjectID uuid.UUID) ([]Group, error) {
	if _, err := svc.repo.GetSubject(ctx, instructorID, subjectID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubjectGroups(ctx, subjectID)
}

func (svc *service) GetGroup(ctx context.Context, instructorID, id uuid.UUID) (Group, error) {
	return svc.repo.GetGroup(ctx, instructorID, id)
}

func (svc *service) CreateGroup(ctx context.Context, instructorID uuid.UUID, ng NewGroup) (Group, error) {
	// the target subject must be in the caller's scope
	if _, err := svc.repo.GetSubject(ctx, instructorID, ng.SubjectID); err != nil {
		return Group{}, err
	}
	now := time.Now().UTC()
	grp := Group{
		ID:        uuid.New(),
		SubjectID: ng.SubjectID,
		Nombre:    core.CleanString(ng.Nombre),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateGroup(ctx, grp)
}

func (svc *service) UpdateGroup(ctx context.Context, instructorID, id uuid.UUID, ug UpdateGroup) (Group, error) {
	grp, err := svc.repo.GetGroup(ctx, instructorID, id)
	if err != nil {
		return Group{}, err
	}
	if nombre := core.CleanString(ug.Nombre); nombre != "" {
		grp.Nombre = nombre
	}
	grp.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGroup(ctx, grp)
}

func (svc *service) DeleteGroup(ctx context.Context, instructorID, id uuid.UUID) error {
	return svc.repo.DeleteGroup(ctx, instructorID, id)
}

// Students

func (svc *service) QueryStudents(ctx context.Context, instructorID uuid.UUID, orderings ...core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, instructorID, orderings...)
}

func (svc *service) QueryGroupStudents(ctx context.Context, instructorID, groupID uuid.UUID) ([]Student, error) {
	if _, err := svc.repo.GetGroup(ctx, instructorID, groupID); err != nil {
		return nil, err
	}
	return svc.repo.QueryGroupStudents(ctx, groupID)
}

func (svc *service) GetStudent(ctx context.Context, instructorID, id uuid.UUID) (Student, error) {
	return svc.repo.GetStudent(ctx, instructorID, id)
}

func (svc *service) UpdateStudent(ctx context.Context, instructorID, id uuid.UUID, us UpdateStudent) (Student, error) {
	stu, err := svc.repo.GetStudent(ctx, instructorID, id)
	if err != nil {
		return Student{}, err
	}
	if nombre := core.CleanString(us.Nombre); nombre != "" {
		stu.NombreCompleto = nombre
	}
	if matricula := core.CleanString(us.Matricula); matricula != "" {
		stu.Matricula = matricula
	}
	stu.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, stu)
}

func (svc *service) DeleteStudent(ctx context.Context, instructorID, id uuid.UUID) error {
	return svc.repo.DeleteStudent(ctx, instructorID, id)
}

// Enroll adds a student to one of the caller's groups. The student is looked
// up by matricula and reused when found (the payload name is ignored then);
// otherwise a new student is created, which requires the full name. The
// enrollment itself is get-or-create: enrolling twice is not an error.
func (svc *service) Enroll(ctx context.Context, instructorID uuid.UUID, ne NewEnrollment) (Student, error) {
	if _, err := svc.repo.GetGroup(ctx, instructorID, ne.GroupID); err != nil {
		return Student{}, err
	}

	matricula := core.CleanString(ne.Matricula)
	stu, err := svc.repo.GetStudentByMatricula(ctx, matricula)
	if errors.Cause(err) == core.ErrNotFound {
		nombre := core.CleanString(ne.Nombre)
		if nombre == "" {
			return Student{}, core.NewValidationError(nil,
				core.FieldError{Field: "nombre", Error: "this field is required"})
		}
		now := time.Now().UTC()
		stu, err = svc.repo.CreateStudent(ctx, Student{
			ID:             uuid.New(),
			NombreCompleto: nombre,
			Matricula:      matricula,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if errors.Cause(err) == core.ErrConflict {
			// lost the creation race; the winner's row is the student
			stu, err = svc.repo.GetStudentByMatricula(ctx, matricula)
		}
	}
	if err != nil {
		return Student{}, err
	}

	if _, err := svc.repo.GetOrCreateEnrollment(ctx, Enrollment{
		ID:        uuid.New(),
		StudentID: stu.ID,
		GroupID:   ne.GroupID,
	}); err != nil {
		return Student{}, err
	}
	return stu, nil
}

// Sessions

func (svc *service) QuerySessions(ctx context.Context, instructorID uuid.UUID) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, instructorID)
}

func (svc *service) QueryGroupSessions(ctx context.Context, instructorID, groupID uuid.UUID) ([]Session, error) {
	if _, err := svc.repo.GetGroup(ctx, instructorID, groupID); err != nil {
		return nil, err
	}
	return svc.repo.QueryGroupSessions(ctx, groupID)
}

func (svc *service) GetSession(ctx context.Context, instructorID, id uuid.UUID) (Session, error) {
	return svc.repo.GetSession(ctx, instructorID, id)
}

func (svc *service) UpdateSession(ctx context.Context, instructorID, id uuid.UUID, us UpdateSession) (Session, error) {
	ses, err := svc.repo.GetSession(ctx, instructorID, id)
	if err != nil {
		return Session{}, err
	}
	if !us.Fecha.IsZero() {
		ses.Fecha = us.Fecha
	}
	if nombre := core.CleanString(us.Nombre); nombre != "" {
		ses.Nombre = nombre
	}
	ses.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSession(ctx, ses)
}

func (svc *service) DeleteSession(ctx context.Context, instructorID, id uuid.UUID) error {
	return svc.repo.DeleteSession(ctx, instructorID, id)
}

// RecordSession creates a session for one of the caller's groups along with
// its attendance records in a single transaction. Entries missing the student
// or carrying an unknown status are skipped.
func (svc *service) RecordSession(ctx context.Context, instructorID uuid.UUID, ns NewSession) (Session, error) {
	if _, err := svc.repo.GetGroup(ctx, instructorID, ns.GroupID); err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	ses := Session{
		ID:        uuid.New(),
		GroupID:   ns.GroupID,
		Fecha:     ns.Fecha,
		Nombre:    core.CleanString(ns.Nombre),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, na := range ns.Asistencias {
		if !na.WellFormed() {
			continue
		}
		ses.Asistencias = append(ses.Asistencias, AttendanceRecord{
			ID:        uuid.New(),
			SessionID: ses.ID,
			StudentID: na.StudentID,
			Status:    na.Status,
		})
	}
	return svc.repo.CreateSessionWithAttendance(ctx, ses)
}

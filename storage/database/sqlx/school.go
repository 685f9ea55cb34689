package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/school"
)

// ordering query params are whitelisted per table; unknown fields are ignored
var (
	subjectOrderColumns = map[string]string{
		"nombre": "nombre",
		"codigo": "codigo",
	}
	studentOrderColumns = map[string]string{
		"nombre":    "e.nombre_completo",
		"studentId": "e.matricula",
	}
)

func applyOrderings(b sq.SelectBuilder, allowed map[string]string, orderings []core.DBOrdering) sq.SelectBuilder {
	for _, ord := range orderings {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		dir := " ASC"
		if !ord.Ascending {
			dir = " DESC"
		}
		b = b.OrderBy(col + dir)
	}
	return b
}

type (
	dbSubject struct {
		ID        uuid.UUID `db:"id"`
		OwnerID   uuid.UUID `db:"docente_id"`
		Nombre    string    `db:"nombre"`
		Codigo    string    `db:"codigo"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	dbGroup struct {
		ID        uuid.UUID `db:"id"`
		SubjectID uuid.UUID `db:"materia_id"`
		Nombre    string    `db:"nombre"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	dbStudent struct {
		ID             uuid.UUID `db:"id"`
		NombreCompleto string    `db:"nombre_completo"`
		Matricula      string    `db:"matricula"`
		CreatedAt      time.Time `db:"created_at"`
		UpdatedAt      time.Time `db:"updated_at"`
	}

	dbSession struct {
		ID        uuid.UUID `db:"id"`
		GroupID   uuid.UUID `db:"grupo_id"`
		Fecha     time.Time `db:"fecha"`
		Nombre    string    `db:"nombre"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	dbAttendance struct {
		ID        uuid.UUID     `db:"id"`
		SessionID uuid.UUID     `db:"sesion_id"`
		StudentID uuid.UUID     `db:"estudiante_id"`
		Status    school.Status `db:"status"`
	}
)

func (ds dbSubject) toSubject() school.Subject {
	return school.Subject{
		ID:        ds.ID,
		OwnerID:   ds.OwnerID,
		Nombre:    ds.Nombre,
		Codigo:    ds.Codigo,
		CreatedAt: ds.CreatedAt,
		UpdatedAt: ds.UpdatedAt,
	}
}

func (dg dbGroup) toGroup() school.Group {
	return school.Group{
		ID:        dg.ID,
		SubjectID: dg.SubjectID,
		Nombre:    dg.Nombre,
		CreatedAt: dg.CreatedAt,
		UpdatedAt: dg.UpdatedAt,
	}
}

func (ds dbStudent) toStudent() school.Student {
	return school.Student{
		ID:             ds.ID,
		NombreCompleto: ds.NombreCompleto,
		Matricula:      ds.Matricula,
		CreatedAt:      ds.CreatedAt,
		UpdatedAt:      ds.UpdatedAt,
	}
}

func (ds dbSession) toSession() school.Session {
	return school.Session{
		ID:        ds.ID,
		GroupID:   ds.GroupID,
		Fecha:     ds.Fecha,
		Nombre:    ds.Nombre,
		CreatedAt: ds.CreatedAt,
		UpdatedAt: ds.UpdatedAt,
	}
}

func (da dbAttendance) toRecord() school.AttendanceRecord {
	return school.AttendanceRecord{
		ID:        da.ID,
		SessionID: da.SessionID,
		StudentID: da.StudentID,
		Status:    da.Status,
	}
}

var (
	subjectColumns = []string{"id", "docente_id", "nombre", "codigo", "created_at", "updated_at"}
	groupColumns   = []string{"id", "materia_id", "nombre", "created_at", "updated_at"}
	studentColumns = []string{"id", "nombre_completo", "matricula", "created_at", "updated_at"}
	sessionColumns = []string{"s.id", "s.grupo_id", "s.fecha", "s.nombre", "s.created_at", "s.updated_at"}
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *sql.DB) school.Repository {
	return &schoolRepository{db: sqlx.NewDb(db, "postgres")}
}

// Subjects

func (repo *schoolRepository) CreateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	query, args, err := psql.Insert("materia").
		Columns(subjectColumns...).
		Values(sub.ID, sub.OwnerID, sub.Nombre, sub.Codigo, sub.CreatedAt, sub.UpdatedAt).
		ToSql()
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return school.Subject{}, errors.Wrap(err, "creating subject")
	}
	return sub, nil
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, ownerID uuid.UUID, orderings ...core.DBOrdering) ([]school.Subject, error) {
	b := psql.Select(subjectColumns...).From("materia").Where(sq.Eq{"docente_id": ownerID})
	b = applyOrderings(b, subjectOrderColumns, orderings)
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []dbSubject
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subs := make([]school.Subject, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toSubject())
	}
	return subs, nil
}

func (repo *schoolRepository) GetSubject(ctx context.Context, ownerID, id uuid.UUID) (school.Subject, error) {
	query, args, err := psql.Select(subjectColumns...).From("materia").
		Where(sq.Eq{"id": id, "docente_id": ownerID}).
		ToSql()
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "building query")
	}

	var row dbSubject
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return school.Subject{}, core.ErrNotFound
		}
		return school.Subject{}, errors.Wrap(err, "getting subject")
	}
	return row.toSubject(), nil
}

func (repo *schoolRepository) UpdateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	query, args, err := psql.Update("materia").
		Set("nombre", sub.Nombre).
		Set("codigo", sub.Codigo).
		Set("updated_at", sub.UpdatedAt).
		Where(sq.Eq{"id": sub.ID, "docente_id": sub.OwnerID}).
		ToSql()
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Subject{}, core.ErrNotFound
	}
	return sub, nil
}

func (repo *schoolRepository) DeleteSubject(ctx context.Context, ownerID, id uuid.UUID) error {
	query, args, err := psql.Delete("materia").
		Where(sq.Eq{"id": id, "docente_id": ownerID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Groups

func (repo *schoolRepository) CreateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	query, args, err := psql.Insert("grupo").
		Columns(groupColumns...).
		Values(grp.ID, grp.SubjectID, grp.Nombre, grp.CreatedAt, grp.UpdatedAt).
		ToSql()
	if err != nil {
		return school.Group{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		if isForeignKeyViolation(err) {
			return school.Group{}, core.ErrNotFound
		}
		return school.Group{}, errors.Wrap(err, "creating group")
	}
	return grp, nil
}

func (repo *schoolRepository) queryGroups(ctx context.Context, pred interface{}) ([]school.Group, error) {
	b := psql.Select("g.id", "g.materia_id", "g.nombre", "g.created_at", "g.updated_at").
		From("grupo g").
		Join("materia m ON m.id = g.materia_id").
		Where(pred).
		OrderBy("g.created_at ASC")
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []dbGroup
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	grps := make([]school.Group, 0, len(rows))
	for _, row := range rows {
		grps = append(grps, row.toGroup())
	}
	return grps, nil
}

func (repo *schoolRepository) QueryGroups(ctx context.Context, ownerID uuid.UUID) ([]school.Group, error) {
	return repo.queryGroups(ctx, sq.Eq{"m.docente_id": ownerID})
}

func (repo *schoolRepository) QuerySubjectGroups(ctx context.Context, subjectID uuid.UUID) ([]school.Group, error) {
	return repo.queryGroups(ctx, sq.Eq{"g.materia_id": subjectID})
}

func (repo *schoolRepository) GetGroup(ctx context.Context, ownerID, id uuid.UUID) (school.Group, error) {
	query, args, err := psql.Select("g.id", "g.materia_id", "g.nombre", "g.created_at", "g.updated_at").
		From("grupo g").
		Join("materia m ON m.id = g.materia_id").
		Where(sq.Eq{"g.id": id, "m.docente_id": ownerID}).
		ToSql()
	if err != nil {
		return school.Group{}, errors.Wrap(err, "building query")
	}

	var row dbGroup
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return school.Group{}, core.ErrNotFound
		}
		return school.Group{}, errors.Wrap(err, "getting group")
	}
	return row.toGroup(), nil
}

func (repo *schoolRepository) UpdateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	query, args, err := psql.Update("grupo").
		Set("nombre", grp.Nombre).
		Set("updated_at", grp.UpdatedAt).
		Where(sq.Eq{"id": grp.ID}).
		ToSql()
	if err != nil {
		return school.Group{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return school.Group{}, errors.Wrap(err, "updating group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Group{}, core.ErrNotFound
	}
	return grp, nil
}

func (repo *schoolRepository) DeleteGroup(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM grupo
		WHERE id = $1 AND materia_id IN (SELECT id FROM materia WHERE docente_id = $2)`
	res, err := repo.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return errors.Wrap(err, "deleting group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Students

func (repo *schoolRepository) CreateStudent(ctx context.Context, stu school.Student) (school.Student, error) {
	query, args, err := psql.Insert("estudiante").
		Columns(studentColumns...).
		Values(stu.ID, stu.NombreCompleto, stu.Matricula, stu.CreatedAt, stu.UpdatedAt).
		ToSql()
	if err != nil {
		return school.Student{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return school.Student{}, core.ErrConflict
		}
		return school.Student{}, errors.Wrap(err, "creating student")
	}
	return stu, nil
}

// QueryStudents returns the students enrolled in any of the owner's groups.
// A student enrolled in several of them shows up once.
func (repo *schoolRepository) QueryStudents(ctx context.Context, ownerID uuid.UUID, orderings ...core.DBOrdering) ([]school.Student, error) {
	b := psql.Select("DISTINCT e.id", "e.nombre_completo", "e.matricula", "e.created_at", "e.updated_at").
		From("estudiante e").
		Join("inscripcion i ON i.estudiante_id = e.id").
		Join("grupo g ON g.id = i.grupo_id").
		Join("materia m ON m.id = g.materia_id").
		Where(sq.Eq{"m.docente_id": ownerID})
	b = applyOrderings(b, studentOrderColumns, orderings)
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []dbStudent
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	stus := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		stus = append(stus, row.toStudent())
	}
	return stus, nil
}

func (repo *schoolRepository) QueryGroupStudents(ctx context.Context, groupID uuid.UUID) ([]school.Student, error) {
	query, args, err := psql.Select("e.id", "e.nombre_completo", "e.matricula", "e.created_at", "e.updated_at").
		From("estudiante e").
		Join("inscripcion i ON i.estudiante_id = e.id").
		Where(sq.Eq{"i.grupo_id": groupID}).
		OrderBy("e.nombre_completo ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []dbStudent
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying group students")
	}
	stus := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		stus = append(stus, row.toStudent())
	}
	return stus, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, ownerID, id uuid.UUID) (school.Student, error) {
	query := `SELECT id, nombre_completo, matricula, created_at, updated_at FROM estudiante
		WHERE id = $1 AND EXISTS (
			SELECT 1 FROM inscripcion i
			JOIN grupo g ON g.id = i.grupo_id
			JOIN materia m ON m.id = g.materia_id
			WHERE i.estudiante_id = estudiante.id AND m.docente_id = $2
		)`

	var row dbStudent
	if err := repo.db.GetContext(ctx, &row, query, id, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return school.Student{}, core.ErrNotFound
		}
		return school.Student{}, errors.Wrap(err, "getting student")
	}
	return row.toStudent(), nil
}

func (repo *schoolRepository) GetStudentByMatricula(ctx context.Context, matricula string) (school.Student, error) {
	query, args, err := psql.Select(studentColumns...).From("estudiante").
		Where(sq.Eq{"matricula": matricula}).
		ToSql()
	if err != nil {
		return school.Student{}, errors.Wrap(err, "building query")
	}

	var row dbStudent
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return school.Student{}, core.ErrNotFound
		}
		return school.Student{}, errors.Wrap(err, "getting student by matricula")
	}
	return row.toStudent(), nil
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, stu school.Student) (school.Student, error) {
	query, args, err := psql.Update("estudiante").
		Set("nombre_completo", stu.NombreCompleto).
		Set("matricula", stu.Matricula).
		Set("updated_at", stu.UpdatedAt).
		Where(sq.Eq{"id": stu.ID}).
		ToSql()
	if err != nil {
		return school.Student{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Student{}, core.ErrConflict
		}
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Student{}, core.ErrNotFound
	}
	return stu, nil
}

func (repo *schoolRepository) DeleteStudent(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM estudiante
		WHERE id = $1 AND EXISTS (
			SELECT 1 FROM inscripcion i
			JOIN grupo g ON g.id = i.grupo_id
			JOIN materia m ON m.id = g.materia_id
			WHERE i.estudiante_id = estudiante.id AND m.docente_id = $2
		)`
	res, err := repo.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Enrollments

func (repo *schoolRepository) GetOrCreateEnrollment(ctx context.Context, enr school.Enrollment) (school.Enrollment, error) {
	get := func() (school.Enrollment, bool, error) {
		query, args, err := psql.Select("id", "estudiante_id", "grupo_id").From("inscripcion").
			Where(sq.Eq{"estudiante_id": enr.StudentID, "grupo_id": enr.GroupID}).
			ToSql()
		if err != nil {
			return school.Enrollment{}, false, errors.Wrap(err, "building query")
		}
		var row struct {
			ID        uuid.UUID `db:"id"`
			StudentID uuid.UUID `db:"estudiante_id"`
			GroupID   uuid.UUID `db:"grupo_id"`
		}
		if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
			if err == sql.ErrNoRows {
				return school.Enrollment{}, false, nil
			}
			return school.Enrollment{}, false, errors.Wrap(err, "getting enrollment")
		}
		return school.Enrollment{ID: row.ID, StudentID: row.StudentID, GroupID: row.GroupID}, true, nil
	}

	existing, found, err := get()
	if err != nil {
		return school.Enrollment{}, err
	}
	if found {
		return existing, nil
	}

	query, args, err := psql.Insert("inscripcion").
		Columns("id", "estudiante_id", "grupo_id").
		Values(enr.ID, enr.StudentID, enr.GroupID).
		ToSql()
	if err != nil {
		return school.Enrollment{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			// lost the race; the winner's row is the enrollment
			existing, found, err = get()
			if err != nil {
				return school.Enrollment{}, err
			}
			if found {
				return existing, nil
			}
		}
		return school.Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

// Sessions

func (repo *schoolRepository) CreateSessionWithAttendance(ctx context.Context, ses school.Session) (school.Session, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return school.Session{}, errors.Wrap(err, "beginning transaction")
	}

	created, err := createSessionTx(ctx, tx, ses)
	if err != nil && errors.Cause(err) != core.ErrConflict {
		tx.Rollback()
		return school.Session{}, err
	}
	// on a duplicate attendance entry the records inserted before it are kept
	if cerr := tx.Commit(); cerr != nil {
		return school.Session{}, errors.Wrap(cerr, "committing transaction")
	}
	return created, err
}

func createSessionTx(ctx context.Context, tx *sqlx.Tx, ses school.Session) (school.Session, error) {
	if ses.Nombre == "" {
		var seq int
		err := tx.QueryRowxContext(ctx,
			`UPDATE grupo SET label_seq = label_seq + 1 WHERE id = $1 RETURNING label_seq`,
			ses.GroupID).Scan(&seq)
		if err != nil {
			if err == sql.ErrNoRows {
				return school.Session{}, core.ErrNotFound
			}
			return school.Session{}, errors.Wrap(err, "bumping session label counter")
		}
		ses.Nombre = school.SessionLabel(seq)
	}

	query, args, err := psql.Insert("sesion").
		Columns("id", "grupo_id", "fecha", "nombre", "created_at", "updated_at").
		Values(ses.ID, ses.GroupID, ses.Fecha, ses.Nombre, ses.CreatedAt, ses.UpdatedAt).
		ToSql()
	if err != nil {
		return school.Session{}, errors.Wrap(err, "building query")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return school.Session{}, errors.Wrap(err, "creating session")
	}

	records := ses.Asistencias
	ses.Asistencias = nil
	seen := make(map[uuid.UUID]bool, len(records))
	for _, rec := range records {
		// the session is brand new, so a duplicate (session, student) pair can
		// only come from the payload itself; checking here keeps the
		// transaction committable with the records inserted so far
		if seen[rec.StudentID] {
			return ses, core.ErrConflict
		}
		seen[rec.StudentID] = true

		query, args, err := psql.Insert("asistencia").
			Columns("id", "sesion_id", "estudiante_id", "status").
			Values(rec.ID, rec.SessionID, rec.StudentID, rec.Status).
			ToSql()
		if err != nil {
			return school.Session{}, errors.Wrap(err, "building query")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isForeignKeyViolation(err) {
				return school.Session{}, errors.Wrap(core.ErrNotFound, "unknown student in attendance")
			}
			return school.Session{}, errors.Wrap(err, "creating attendance record")
		}
		ses.Asistencias = append(ses.Asistencias, rec)
	}
	return ses, nil
}

func (repo *schoolRepository) querySessions(ctx context.Context, pred interface{}) ([]school.Session, error) {
	b := psql.Select(sessionColumns...).
		From("sesion s").
		Join("grupo g ON g.id = s.grupo_id").
		Join("materia m ON m.id = g.materia_id").
		Where(pred).
		OrderBy("s.fecha ASC", "s.created_at ASC")
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []dbSession
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sess := make([]school.Session, 0, len(rows))
	for _, row := range rows {
		sess = append(sess, row.toSession())
	}
	if err := repo.attachAttendance(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (repo *schoolRepository) QuerySessions(ctx context.Context, ownerID uuid.UUID) ([]school.Session, error) {
	return repo.querySessions(ctx, sq.Eq{"m.docente_id": ownerID})
}

func (repo *schoolRepository) QueryGroupSessions(ctx context.Context, groupID uuid.UUID) ([]school.Session, error) {
	return repo.querySessions(ctx, sq.Eq{"s.grupo_id": groupID})
}

func (repo *schoolRepository) GetSession(ctx context.Context, ownerID, id uuid.UUID) (school.Session, error) {
	query, args, err := psql.Select(sessionColumns...).
		From("sesion s").
		Join("grupo g ON g.id = s.grupo_id").
		Join("materia m ON m.id = g.materia_id").
		Where(sq.Eq{"s.id": id, "m.docente_id": ownerID}).
		ToSql()
	if err != nil {
		return school.Session{}, errors.Wrap(err, "building query")
	}

	var row dbSession
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return school.Session{}, core.ErrNotFound
		}
		return school.Session{}, errors.Wrap(err, "getting session")
	}
	sess := []school.Session{row.toSession()}
	if err := repo.attachAttendance(ctx, sess); err != nil {
		return school.Session{}, err
	}
	return sess[0], nil
}

func (repo *schoolRepository) UpdateSession(ctx context.Context, ses school.Session) (school.Session, error) {
	query, args, err := psql.Update("sesion").
		Set("fecha", ses.Fecha).
		Set("nombre", ses.Nombre).
		Set("updated_at", ses.UpdatedAt).
		Where(sq.Eq{"id": ses.ID}).
		ToSql()
	if err != nil {
		return school.Session{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return school.Session{}, errors.Wrap(err, "updating session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Session{}, core.ErrNotFound
	}
	return ses, nil
}

// DeleteSession removes the session and its attendance records (cascade). The
// group's label counter is left alone, so the deleted session's auto label is
// never reused.
func (repo *schoolRepository) DeleteSession(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM sesion
		WHERE id = $1 AND grupo_id IN (
			SELECT g.id FROM grupo g
			JOIN materia m ON m.id = g.materia_id
			WHERE m.docente_id = $2
		)`
	res, err := repo.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (repo *schoolRepository) attachAttendance(ctx context.Context, sess []school.Session) error {
	if len(sess) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(sess))
	byID := make(map[uuid.UUID]*school.Session, len(sess))
	for i := range sess {
		ids = append(ids, sess[i].ID)
		byID[sess[i].ID] = &sess[i]
	}

	query, args, err := psql.Select("id", "sesion_id", "estudiante_id", "status").
		From("asistencia").
		Where(sq.Eq{"sesion_id": ids}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var rows []dbAttendance
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	for _, row := range rows {
		if ses, ok := byID[row.SessionID]; ok {
			ses.Asistencias = append(ses.Asistencias, row.toRecord())
		}
	}
	return nil
}

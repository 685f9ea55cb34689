package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/school"
)

type schoolRepository struct {
	db *schoolTable
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db.school}
}

// callers must hold the table lock
func (repo *schoolRepository) subjectOwned(ownerID, id uuid.UUID) bool {
	sub, ok := repo.db.subjects[id]
	return ok && sub.OwnerID == ownerID
}

// callers must hold the table lock
func (repo *schoolRepository) groupOwned(ownerID, id uuid.UUID) bool {
	grp, ok := repo.db.groups[id]
	return ok && repo.subjectOwned(ownerID, grp.SubjectID)
}

// callers must hold the table lock
func (repo *schoolRepository) studentOwned(ownerID, id uuid.UUID) bool {
	for _, enr := range repo.db.enrollments {
		if enr.StudentID == id && repo.groupOwned(ownerID, enr.GroupID) {
			return true
		}
	}
	return false
}

// Subjects

func (repo *schoolRepository) CreateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, ownerID uuid.UUID, orderings ...core.DBOrdering) ([]school.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]school.Subject, 0)
	for _, sub := range repo.db.subjects {
		if sub.OwnerID == ownerID {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	for k := len(orderings) - 1; k >= 0; k-- {
		ord := orderings[k]
		sort.SliceStable(subs, func(i, j int) bool {
			var a, b string
			switch ord.Field {
			case "nombre":
				a, b = subs[i].Nombre, subs[j].Nombre
			case "codigo":
				a, b = subs[i].Codigo, subs[j].Codigo
			default:
				return false
			}
			if !ord.Ascending {
				return a > b
			}
			return a < b
		})
	}
	return subs, nil
}

func (repo *schoolRepository) GetSubject(ctx context.Context, ownerID, id uuid.UUID) (school.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.subjectOwned(ownerID, id) {
		return *repo.db.subjects[id], nil
	}
	return school.Subject{}, core.ErrNotFound
}

func (repo *schoolRepository) UpdateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.subjectOwned(sub.OwnerID, sub.ID) {
		return school.Subject{}, core.ErrNotFound
	}
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *schoolRepository) DeleteSubject(ctx context.Context, ownerID, id uuid.UUID) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.subjectOwned(ownerID, id) {
		return core.ErrNotFound
	}
	for gid, grp := range repo.db.groups {
		if grp.SubjectID == id {
			repo.deleteGroupCascade(gid)
		}
	}
	delete(repo.db.subjects, id)
	return nil
}

// callers must hold the table lock
func (repo *schoolRepository) deleteGroupCascade(id uuid.UUID) {
	for eid, enr := range repo.db.enrollments {
		if enr.GroupID == id {
			delete(repo.db.enrollments, eid)
		}
	}
	for sid, ses := range repo.db.sessions {
		if ses.GroupID == id {
			delete(repo.db.sessions, sid)
		}
	}
	delete(repo.db.labelSeq, id)
	delete(repo.db.groups, id)
}

// Groups

func (repo *schoolRepository) CreateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.subjects[grp.SubjectID]; !ok {
		return school.Group{}, core.ErrNotFound
	}
	repo.db.groups[grp.ID] = &grp
	return grp, nil
}

// callers must hold the table lock
func (repo *schoolRepository) queryGroups(keep func(school.Group) bool) []school.Group {
	grps := make([]school.Group, 0)
	for _, grp := range repo.db.groups {
		if keep(*grp) {
			grps = append(grps, *grp)
		}
	}
	sort.Slice(grps, func(i, j int) bool { return grps[i].CreatedAt.Before(grps[j].CreatedAt) })
	return grps
}

func (repo *schoolRepository) QueryGroups(ctx context.Context, ownerID uuid.UUID) ([]school.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryGroups(func(grp school.Group) bool {
		return repo.subjectOwned(ownerID, grp.SubjectID)
	}), nil
}

func (repo *schoolRepository) QuerySubjectGroups(ctx context.Context, subjectID uuid.UUID) ([]school.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryGroups(func(grp school.Group) bool {
		return grp.SubjectID == subjectID
	}), nil
}

func (repo *schoolRepository) GetGroup(ctx context.Context, ownerID, id uuid.UUID) (school.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.groupOwned(ownerID, id) {
		return *repo.db.groups[id], nil
	}
	return school.Group{}, core.ErrNotFound
}

func (repo *schoolRepository) UpdateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.groups[grp.ID]; !ok {
		return school.Group{}, core.ErrNotFound
	}
	repo.db.groups[grp.ID] = &grp
	return grp, nil
}

func (repo *schoolRepository) DeleteGroup(ctx context.Context, ownerID, id uuid.UUID) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.groupOwned(ownerID, id) {
		return core.ErrNotFound
	}
	repo.deleteGroupCascade(id)
	return nil
}

// Students

func (repo *schoolRepository) CreateStudent(ctx context.Context, stu school.Student) (school.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.students {
		if existing.Matricula == stu.Matricula {
			return school.Student{}, core.ErrConflict
		}
	}
	repo.db.students[stu.ID] = &stu
	return stu, nil
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, ownerID uuid.UUID, orderings ...core.DBOrdering) ([]school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[uuid.UUID]bool)
	stus := make([]school.Student, 0)
	for _, enr := range repo.db.enrollments {
		if seen[enr.StudentID] || !repo.groupOwned(ownerID, enr.GroupID) {
			continue
		}
		seen[enr.StudentID] = true
		if stu, ok := repo.db.students[enr.StudentID]; ok {
			stus = append(stus, *stu)
		}
	}
	sort.Slice(stus, func(i, j int) bool { return stus[i].CreatedAt.Before(stus[j].CreatedAt) })
	for k := len(orderings) - 1; k >= 0; k-- {
		ord := orderings[k]
		sort.SliceStable(stus, func(i, j int) bool {
			var a, b string
			switch ord.Field {
			case "nombre":
				a, b = stus[i].NombreCompleto, stus[j].NombreCompleto
			case "studentId":
				a, b = stus[i].Matricula, stus[j].Matricula
			default:
				return false
			}
			if !ord.Ascending {
				return a > b
			}
			return a < b
		})
	}
	return stus, nil
}

func (repo *schoolRepository) QueryGroupStudents(ctx context.Context, groupID uuid.UUID) ([]school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stus := make([]school.Student, 0)
	for _, enr := range repo.db.enrollments {
		if enr.GroupID != groupID {
			continue
		}
		if stu, ok := repo.db.students[enr.StudentID]; ok {
			stus = append(stus, *stu)
		}
	}
	sort.Slice(stus, func(i, j int) bool { return stus[i].NombreCompleto < stus[j].NombreCompleto })
	return stus, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, ownerID, id uuid.UUID) (school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.studentOwned(ownerID, id) {
		return *repo.db.students[id], nil
	}
	return school.Student{}, core.ErrNotFound
}

func (repo *schoolRepository) GetStudentByMatricula(ctx context.Context, matricula string) (school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, stu := range repo.db.students {
		if stu.Matricula == matricula {
			return *stu, nil
		}
	}
	return school.Student{}, core.ErrNotFound
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, stu school.Student) (school.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[stu.ID]; !ok {
		return school.Student{}, core.ErrNotFound
	}
	for _, existing := range repo.db.students {
		if existing.ID != stu.ID && existing.Matricula == stu.Matricula {
			return school.Student{}, core.ErrConflict
		}
	}
	repo.db.students[stu.ID] = &stu
	return stu, nil
}

func (repo *schoolRepository) DeleteStudent(ctx context.Context, ownerID, id uuid.UUID) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.studentOwned(ownerID, id) {
		return core.ErrNotFound
	}
	for eid, enr := range repo.db.enrollments {
		if enr.StudentID == id {
			delete(repo.db.enrollments, eid)
		}
	}
	for _, ses := range repo.db.sessions {
		kept := ses.Asistencias[:0]
		for _, rec := range ses.Asistencias {
			if rec.StudentID != id {
				kept = append(kept, rec)
			}
		}
		ses.Asistencias = kept
	}
	delete(repo.db.students, id)
	return nil
}

// Enrollments

func (repo *schoolRepository) GetOrCreateEnrollment(ctx context.Context, enr school.Enrollment) (school.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.enrollments {
		if existing.StudentID == enr.StudentID && existing.GroupID == enr.GroupID {
			return *existing, nil
		}
	}
	repo.db.enrollments[enr.ID] = &enr
	return enr, nil
}

// Sessions

func (repo *schoolRepository) CreateSessionWithAttendance(ctx context.Context, ses school.Session) (school.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.groups[ses.GroupID]; !ok {
		return school.Session{}, core.ErrNotFound
	}
	if ses.Nombre == "" {
		repo.db.labelSeq[ses.GroupID]++
		ses.Nombre = school.SessionLabel(repo.db.labelSeq[ses.GroupID])
	}

	records := ses.Asistencias
	ses.Asistencias = nil
	seen := make(map[uuid.UUID]bool, len(records))
	var conflict bool
	for _, rec := range records {
		if seen[rec.StudentID] {
			conflict = true
			break
		}
		seen[rec.StudentID] = true
		ses.Asistencias = append(ses.Asistencias, rec)
	}

	repo.db.sessions[ses.ID] = &ses
	if conflict {
		return ses, core.ErrConflict
	}
	return ses, nil
}

// callers must hold the table lock
func (repo *schoolRepository) querySessions(keep func(school.Session) bool) []school.Session {
	sess := make([]school.Session, 0)
	for _, ses := range repo.db.sessions {
		if keep(*ses) {
			sess = append(sess, *ses)
		}
	}
	sort.Slice(sess, func(i, j int) bool {
		if !sess[i].Fecha.Equal(sess[j].Fecha) {
			return sess[i].Fecha.Before(sess[j].Fecha)
		}
		return sess[i].CreatedAt.Before(sess[j].CreatedAt)
	})
	return sess
}

func (repo *schoolRepository) QuerySessions(ctx context.Context, ownerID uuid.UUID) ([]school.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.querySessions(func(ses school.Session) bool {
		return repo.groupOwned(ownerID, ses.GroupID)
	}), nil
}

func (repo *schoolRepository) QueryGroupSessions(ctx context.Context, groupID uuid.UUID) ([]school.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.querySessions(func(ses school.Session) bool {
		return ses.GroupID == groupID
	}), nil
}

func (repo *schoolRepository) GetSession(ctx context.Context, ownerID, id uuid.UUID) (school.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ses, ok := repo.db.sessions[id]; ok && repo.groupOwned(ownerID, ses.GroupID) {
		return *ses, nil
	}
	return school.Session{}, core.ErrNotFound
}

func (repo *schoolRepository) UpdateSession(ctx context.Context, ses school.Session) (school.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.sessions[ses.ID]; !ok {
		return school.Session{}, core.ErrNotFound
	}
	repo.db.sessions[ses.ID] = &ses
	return ses, nil
}

// DeleteSession leaves the group's label counter alone, so the deleted
// session's auto label is never reused.
func (repo *schoolRepository) DeleteSession(ctx context.Context, ownerID, id uuid.UUID) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ses, ok := repo.db.sessions[id]
	if !ok || !repo.groupOwned(ownerID, ses.GroupID) {
		return core.ErrNotFound
	}
	delete(repo.db.sessions, id)
	return nil
}

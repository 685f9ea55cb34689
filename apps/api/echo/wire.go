package echoapi

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/school"
)

// Resources are the wire shapes of the domain entities; the Spanish keys are
// part of the public contract. Detail and list endpoints assemble the full
// tree below an entity.

const dateFormat = "2006-01-02"

type (
	SubjectResource struct {
		ID     uuid.UUID       `json:"id"`
		Nombre string          `json:"nombre"`
		Codigo string          `json:"codigo"`
		Grupos []GroupResource `json:"grupos"`
	}

	GroupResource struct {
		ID          uuid.UUID         `json:"id"`
		Nombre      string            `json:"nombre"`
		Materia     uuid.UUID         `json:"materia"`
		Estudiantes []StudentResource `json:"estudiantes"`
		Sesiones    []SessionResource `json:"sesiones"`
	}

	StudentResource struct {
		ID        uuid.UUID `json:"id"`
		Nombre    string    `json:"nombre"`
		StudentID string    `json:"studentId"`
	}

	SessionResource struct {
		ID          uuid.UUID            `json:"id"`
		Fecha       string               `json:"fecha"`
		Nombre      string               `json:"nombre"`
		Grupo       uuid.UUID            `json:"grupo"`
		Asistencias []AttendanceResource `json:"asistencias"`
	}

	AttendanceResource struct {
		StudentID uuid.UUID     `json:"studentId"`
		Status    school.Status `json:"status"`
	}
)

func newStudentResource(stu school.Student) StudentResource {
	return StudentResource{
		ID:        stu.ID,
		Nombre:    stu.NombreCompleto,
		StudentID: stu.Matricula,
	}
}

func newStudentResources(stus []school.Student) []StudentResource {
	res := make([]StudentResource, 0, len(stus))
	for _, stu := range stus {
		res = append(res, newStudentResource(stu))
	}
	return res
}

func newSessionResource(ses school.Session) SessionResource {
	res := SessionResource{
		ID:          ses.ID,
		Fecha:       ses.Fecha.Format(dateFormat),
		Nombre:      ses.Nombre,
		Grupo:       ses.GroupID,
		Asistencias: make([]AttendanceResource, 0, len(ses.Asistencias)),
	}
	for _, rec := range ses.Asistencias {
		res.Asistencias = append(res.Asistencias, AttendanceResource{
			StudentID: rec.StudentID,
			Status:    rec.Status,
		})
	}
	return res
}

func newSessionResources(sess []school.Session) []SessionResource {
	res := make([]SessionResource, 0, len(sess))
	for _, ses := range sess {
		res = append(res, newSessionResource(ses))
	}
	return res
}

func newGroupResource(grp school.Group, stus []school.Student, sess []school.Session) GroupResource {
	return GroupResource{
		ID:          grp.ID,
		Nombre:      grp.Nombre,
		Materia:     grp.SubjectID,
		Estudiantes: newStudentResources(stus),
		Sesiones:    newSessionResources(sess),
	}
}

func newSubjectResource(sub school.Subject, grps []GroupResource) SubjectResource {
	if grps == nil {
		grps = make([]GroupResource, 0)
	}
	return SubjectResource{
		ID:     sub.ID,
		Nombre: sub.Nombre,
		Codigo: sub.Codigo,
		Grupos: grps,
	}
}

// Session payloads carry the date as a plain YYYY-MM-DD string.

type (
	NewSessionRequest struct {
		GroupID     uuid.UUID              `json:"grupo" validate:"required"`
		Fecha       string                 `json:"fecha" validate:"required"`
		Nombre      string                 `json:"nombre"`
		Asistencias []school.NewAttendance `json:"asistencias"`
	}

	UpdateSessionRequest struct {
		Fecha  string `json:"fecha"`
		Nombre string `json:"nombre"`
	}
)

func (nsr *NewSessionRequest) Validate(validate *validator.Validate) error {
	nsr.Nombre = core.CleanString(nsr.Nombre)
	return validate.Struct(nsr)
}

func parseDate(val string) (time.Time, error) {
	t, err := time.Parse(dateFormat, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{
			Field: "fecha",
			Error: "invalid date format, expected YYYY-MM-DD",
		})
	}
	return t, nil
}

func (nsr *NewSessionRequest) toNewSession() (school.NewSession, error) {
	fecha, err := parseDate(nsr.Fecha)
	if err != nil {
		return school.NewSession{}, err
	}
	return school.NewSession{
		GroupID:     nsr.GroupID,
		Fecha:       fecha,
		Nombre:      nsr.Nombre,
		Asistencias: nsr.Asistencias,
	}, nil
}

func (usr *UpdateSessionRequest) toUpdateSession() (school.UpdateSession, error) {
	us := school.UpdateSession{Nombre: usr.Nombre}
	if usr.Fecha != "" {
		fecha, err := parseDate(usr.Fecha)
		if err != nil {
			return school.UpdateSession{}, err
		}
		us.Fecha = fecha
	}
	return us, nil
}

package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core/school"
)

// Fixtures go through the service so they carry the same invariants the
// handlers rely on.

func createSubject(t *testing.T, svc school.Service, instructorID uuid.UUID, nombre, codigo string) school.Subject {
	t.Helper()

	sub, err := svc.CreateSubject(context.Background(), instructorID, school.NewSubject{Nombre: nombre, Codigo: codigo})
	require.NoError(t, err)
	return sub
}

func createGroup(t *testing.T, svc school.Service, instructorID, subjectID uuid.UUID, nombre string) school.Group {
	t.Helper()

	grp, err := svc.CreateGroup(context.Background(), instructorID, school.NewGroup{SubjectID: subjectID, Nombre: nombre})
	require.NoError(t, err)
	return grp
}

func enrollStudent(t *testing.T, svc school.Service, instructorID, groupID uuid.UUID, matricula, nombre string) school.Student {
	t.Helper()

	stu, err := svc.Enroll(context.Background(), instructorID, school.NewEnrollment{
		GroupID:   groupID,
		Matricula: matricula,
		Nombre:    nombre,
	})
	require.NoError(t, err)
	return stu
}

func Test_schoolApi_authRequired(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)

	tests := []httpTest{
		{name: "no token", path: "/v1/materias", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "garbage token", path: "/v1/materias", token: "lol.lol.lol", wantCode: http.StatusUnauthorized},
		{
			name: "refresh token rejected", path: "/v1/grupos", token: getRefreshToken(t, usr), wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error":"user not authenticated"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.server.ServeHTTP(rec, req)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_schoolApi_subjects(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)
	other := createInstructor(t, app.usrRepo, "Otra Persona", "otra@test.mx", "s3cret", true)
	token := getToken(t, usr)

	theirs := createSubject(t, app.schoolSvc, other.ID, "Cálculo", "MAT-201")

	t.Run("create validates required fields", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"nombre":"this field is required","codigo":"this field is required"}`),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/materias", token, []byte("{}"))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	var created SubjectResource
	t.Run("create", func(t *testing.T) {
		body := []byte(`{"nombre":"Programación","codigo":"CS-101"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/materias", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "Programación", created.Nombre)
		assert.Equal(t, "CS-101", created.Codigo)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, []GroupResource{}, created.Grupos)
	})

	t.Run("list is scoped and ordered", func(t *testing.T) {
		createSubject(t, app.schoolSvc, usr.ID, "Álgebra", "MAT-101")

		req, rec := newAuthRequest(http.MethodGet, "/v1/materias?ordering=-codigo", token)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var subs []SubjectResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
		require.Len(t, subs, 2)
		assert.Equal(t, "MAT-101", subs[0].Codigo)
		assert.Equal(t, "CS-101", subs[1].Codigo)
	})

	t.Run("retrieve", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, created)}
		req, rec := newAuthRequest(http.MethodGet, "/v1/materias/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("another instructor's subject is invisible", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
			tt := httpTest{wantCode: http.StatusNotFound, wantData: []byte(`{"error":"not found"}`)}
			req, rec := newAuthRequest(method, "/v1/materias/"+theirs.ID.String(), token, []byte("{}"))
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		}
	})

	t.Run("malformed id behaves like a missing object", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusNotFound, wantData: []byte(`{"error":"not found"}`)}
		req, rec := newAuthRequest(http.MethodGet, "/v1/materias/lol", token)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("partial update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, "/v1/materias/"+created.ID.String(), token, []byte(`{"nombre":"Programación II"}`))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sub SubjectResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
		assert.Equal(t, "Programación II", sub.Nombre)
		assert.Equal(t, "CS-101", sub.Codigo) // untouched
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/materias/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/materias/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_schoolApi_groups(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)
	token := getToken(t, usr)

	sub := createSubject(t, app.schoolSvc, usr.ID, "Programación", "CS-101")

	t.Run("create requires a subject", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"materia":"this field is required","nombre":"this field is required"}`),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/grupos", token, []byte("{}"))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("create under another instructor's subject is not found", func(t *testing.T) {
		other := createInstructor(t, app.usrRepo, "Otra Persona", "otra@test.mx", "s3cret", true)
		theirs := createSubject(t, app.schoolSvc, other.ID, "Cálculo", "MAT-201")

		tt := httpTest{wantCode: http.StatusNotFound, wantData: []byte(`{"error":"not found"}`)}
		body := marchallObj(t, school.NewGroup{SubjectID: theirs.ID, Nombre: "Grupo A"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/grupos", token, body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	var created GroupResource
	t.Run("create", func(t *testing.T) {
		body := marchallObj(t, school.NewGroup{SubjectID: sub.ID, Nombre: "Grupo A"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/grupos", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "Grupo A", created.Nombre)
		assert.Equal(t, sub.ID, created.Materia)
		assert.Equal(t, []StudentResource{}, created.Estudiantes)
		assert.Equal(t, []SessionResource{}, created.Sesiones)
	})

	t.Run("subject detail carries the group tree", func(t *testing.T) {
		stu := enrollStudent(t, app.schoolSvc, usr.ID, created.ID, "A01234", "Ana López")

		req, rec := newAuthRequest(http.MethodGet, "/v1/materias/"+sub.ID.String(), token)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res SubjectResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Len(t, res.Grupos, 1)
		assert.Equal(t, created.ID, res.Grupos[0].ID)
		require.Len(t, res.Grupos[0].Estudiantes, 1)
		assert.Equal(t, newStudentResource(stu), res.Grupos[0].Estudiantes[0])
	})

	t.Run("destroy cascades", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/grupos/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/grupos/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_schoolApi_students(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)
	token := getToken(t, usr)

	sub := createSubject(t, app.schoolSvc, usr.ID, "Programación", "CS-101")
	grp := createGroup(t, app.schoolSvc, usr.ID, sub.ID, "Grupo A")

	t.Run("enroll validates required fields", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"grupo":"this field is required","studentId":"this field is required"}`),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/estudiantes", token, []byte("{}"))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	var created StudentResource
	t.Run("enroll", func(t *testing.T) {
		body := marchallObj(t, school.NewEnrollment{GroupID: grp.ID, Matricula: "A01234", Nombre: "Ana López"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/estudiantes", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "Ana López", created.Nombre)
		assert.Equal(t, "A01234", created.StudentID)
	})

	t.Run("enroll is idempotent", func(t *testing.T) {
		body := marchallObj(t, school.NewEnrollment{GroupID: grp.ID, Matricula: "A01234"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/estudiantes", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var stu StudentResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stu))
		assert.Equal(t, created, stu) // same row, not a duplicate
	})

	t.Run("list is ordered", func(t *testing.T) {
		enrollStudent(t, app.schoolSvc, usr.ID, grp.ID, "A00001", "Beto Ruiz")

		req, rec := newAuthRequest(http.MethodGet, "/v1/estudiantes?ordering=studentId", token)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stus []StudentResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stus))
		require.Len(t, stus, 2)
		assert.Equal(t, "A00001", stus[0].StudentID)
		assert.Equal(t, "A01234", stus[1].StudentID)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, "/v1/estudiantes/"+created.ID.String(), token, []byte(`{"nombre":"Ana López G."}`))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stu StudentResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stu))
		assert.Equal(t, "Ana López G.", stu.Nombre)
		assert.Equal(t, "A01234", stu.StudentID)
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/estudiantes/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/estudiantes/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_schoolApi_sessions(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)
	token := getToken(t, usr)

	sub := createSubject(t, app.schoolSvc, usr.ID, "Programación", "CS-101")
	grp := createGroup(t, app.schoolSvc, usr.ID, sub.ID, "Grupo A")
	ana := enrollStudent(t, app.schoolSvc, usr.ID, grp.ID, "A01234", "Ana López")
	beto := enrollStudent(t, app.schoolSvc, usr.ID, grp.ID, "A00001", "Beto Ruiz")

	t.Run("record rejects a malformed date", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"fecha":"invalid date format, expected YYYY-MM-DD"}`),
		}
		body := marchallObj(t, NewSessionRequest{GroupID: grp.ID, Fecha: "04/05/2026"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/sesiones", token, body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("record validates required fields", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"fecha":"this field is required","grupo":"this field is required"}`),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/sesiones", token, []byte("{}"))
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	var created SessionResource
	t.Run("record with auto label and attendance", func(t *testing.T) {
		body := marchallObj(t, NewSessionRequest{
			GroupID: grp.ID,
			Fecha:   "2026-05-04",
			Asistencias: []school.NewAttendance{
				{StudentID: ana.ID, Status: school.StatusPresente},
				{StudentID: beto.ID, Status: school.StatusAusente},
			},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/sesiones", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "Sesión 1", created.Nombre)
		assert.Equal(t, "2026-05-04", created.Fecha)
		assert.Equal(t, grp.ID, created.Grupo)
		assert.ElementsMatch(t, []AttendanceResource{
			{StudentID: ana.ID, Status: school.StatusPresente},
			{StudentID: beto.ID, Status: school.StatusAusente},
		}, created.Asistencias)
	})

	t.Run("labels keep counting", func(t *testing.T) {
		body := marchallObj(t, NewSessionRequest{GroupID: grp.ID, Fecha: "2026-05-05"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/sesiones", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ses SessionResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ses))
		assert.Equal(t, "Sesión 2", ses.Nombre)
	})

	t.Run("duplicate attendance entry conflicts", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusConflict, wantData: []byte(`{"error":"conflict"}`)}
		body := marchallObj(t, NewSessionRequest{
			GroupID: grp.ID,
			Fecha:   "2026-05-06",
			Asistencias: []school.NewAttendance{
				{StudentID: ana.ID, Status: school.StatusPresente},
				{StudentID: ana.ID, Status: school.StatusAusente},
			},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/sesiones", token, body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)

		// the session and the first entry were kept
		req, rec = newAuthRequest(http.MethodGet, "/v1/sesiones", token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sess []SessionResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
		require.Len(t, sess, 3)
		for _, ses := range sess {
			if ses.Fecha != "2026-05-06" {
				continue
			}
			assert.Equal(t, []AttendanceResource{{StudentID: ana.ID, Status: school.StatusPresente}}, ses.Asistencias)
		}
	})

	t.Run("partial update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, "/v1/sesiones/"+created.ID.String(), token, []byte(`{"nombre":"Examen parcial"}`))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ses SessionResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ses))
		assert.Equal(t, "Examen parcial", ses.Nombre)
		assert.Equal(t, "2026-05-04", ses.Fecha) // untouched
	})

	t.Run("deleting a session does not recycle its label", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/sesiones/"+created.ID.String(), token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		body := marchallObj(t, NewSessionRequest{GroupID: grp.ID, Fecha: "2026-05-07"})
		req, rec = newAuthRequest(http.MethodPost, "/v1/sesiones", token, body)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ses SessionResource
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ses))
		assert.Equal(t, "Sesión 4", ses.Nombre)
	})
}

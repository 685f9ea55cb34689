package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core/school"
)

type schoolApi struct {
	svc      school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc school.Service, validate *validator.Validate) {
	api := schoolApi{
		svc:      svc,
		validate: validate,
	}

	register := func(prefix string, list, create, retrieve, update, destroy echo.HandlerFunc) {
		rg := g.Group(prefix, jwt, accessTokenMiddleware())
		rg.GET("", list)
		rg.POST("", create)
		rg.GET("/:id", retrieve)
		rg.PUT("/:id", update)
		rg.PATCH("/:id", update)
		rg.DELETE("/:id", destroy)
	}

	register("/materias", api.querySubjects, api.createSubject, api.retrieveSubject, api.updateSubject, api.destroySubject)
	register("/grupos", api.queryGroups, api.createGroup, api.retrieveGroup, api.updateGroup, api.destroyGroup)
	register("/estudiantes", api.queryStudents, api.enrollStudent, api.retrieveStudent, api.updateStudent, api.destroyStudent)
	register("/sesiones", api.querySessions, api.recordSession, api.retrieveSession, api.updateSession, api.destroySession)
}

// objectID parses the :id path param. A malformed ID behaves like a missing
// object.
func objectID(ctx echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return uuid.Nil, errHttpNotFound
	}
	return id, nil
}

// buildGroupResource assembles a group with its enrolled students and
// sessions.
func (api *schoolApi) buildGroupResource(ctx echo.Context, instructorID uuid.UUID, grp school.Group) (GroupResource, error) {
	c := ctx.Request().Context()

	stus, err := api.svc.QueryGroupStudents(c, instructorID, grp.ID)
	if err != nil {
		return GroupResource{}, errors.Wrap(err, "querying group students")
	}
	sess, err := api.svc.QueryGroupSessions(c, instructorID, grp.ID)
	if err != nil {
		return GroupResource{}, errors.Wrap(err, "querying group sessions")
	}
	return newGroupResource(grp, stus, sess), nil
}

func (api *schoolApi) buildGroupResources(ctx echo.Context, instructorID uuid.UUID, grps []school.Group) ([]GroupResource, error) {
	res := make([]GroupResource, 0, len(grps))
	for _, grp := range grps {
		gr, err := api.buildGroupResource(ctx, instructorID, grp)
		if err != nil {
			return nil, err
		}
		res = append(res, gr)
	}
	return res, nil
}

func (api *schoolApi) buildSubjectResource(ctx echo.Context, instructorID uuid.UUID, sub school.Subject) (SubjectResource, error) {
	grps, err := api.svc.QuerySubjectGroups(ctx.Request().Context(), instructorID, sub.ID)
	if err != nil {
		return SubjectResource{}, errors.Wrap(err, "querying subject groups")
	}
	grpRes, err := api.buildGroupResources(ctx, instructorID, grps)
	if err != nil {
		return SubjectResource{}, err
	}
	return newSubjectResource(sub, grpRes), nil
}

// Subjects

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	subs, err := api.svc.QuerySubjects(ctx.Request().Context(), instructorID, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}

	res := make([]SubjectResource, 0, len(subs))
	for _, sub := range subs {
		sr, err := api.buildSubjectResource(ctx, instructorID, sub)
		if err != nil {
			return err
		}
		res = append(res, sr)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}

	var data school.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.CreateSubject(ctx.Request().Context(), instructorID, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, newSubjectResource(sub, nil))
}

func (api *schoolApi) retrieveSubject(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.GetSubject(ctx.Request().Context(), instructorID, id)
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}
	res, err := api.buildSubjectResource(ctx, instructorID, sub)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolApi) updateSubject(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	var data school.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}

	sub, err := api.svc.UpdateSubject(ctx.Request().Context(), instructorID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	res, err := api.buildSubjectResource(ctx, instructorID, sub)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.DeleteSubject(ctx.Request().Context(), instructorID, id); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Groups

func (api *schoolApi) queryGroups(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}

	grps, err := api.svc.QueryGroups(ctx.Request().Context(), instructorID)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	res, err := api.buildGroupResources(ctx, instructorID, grps)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolApi) createGroup(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}

	var data school.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grp, err := api.svc.CreateGroup(ctx.Request().Context(), instructorID, data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, newGroupResource(grp, nil, nil))
}

func (api *schoolApi) retrieveGroup(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	grp, err := api.svc.GetGroup(ctx.Request().Context(), instructorID, id)
	if err != nil {
		return errors.Wrap(err, "getting group")
	}
	res, err := api.buildGroupResource(ctx, instructorID, grp)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolApi) updateGroup(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	var data school.UpdateGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}

	grp, err := api.svc.UpdateGroup(ctx.Request().Context(), instructorID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	res, err := api.buildGroupResource(ctx, instructorID, grp)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *schoolApi) destroyGroup(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.DeleteGroup(ctx.Request().Context(), instructorID, id); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	stus, err := api.svc.QueryStudents(ctx.Request().Context(), instructorID, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, newStudentResources(stus))
}

// enrollStudent adds a student to a group, creating the student row when the
// matricula is new. Enrolling an already enrolled student succeeds and
// returns the same shape.
func (api *schoolApi) enrollStudent(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}

	var data school.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	stu, err := api.svc.Enroll(ctx.Request().Context(), instructorID, data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, newStudentResource(stu))
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	stu, err := api.svc.GetStudent(ctx.Request().Context(), instructorID, id)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, newStudentResource(stu))
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	var data school.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	stu, err := api.svc.UpdateStudent(ctx.Request().Context(), instructorID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, newStudentResource(stu))
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.DeleteStudent(ctx.Request().Context(), instructorID, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Sessions

func (api *schoolApi) querySessions(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.QuerySessions(ctx.Request().Context(), instructorID)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, newSessionResources(sess))
}

func (api *schoolApi) recordSession(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}

	var data NewSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSessionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ns, err := data.toNewSession()
	if err != nil {
		return err
	}

	ses, err := api.svc.RecordSession(ctx.Request().Context(), instructorID, ns)
	if err != nil {
		return errors.Wrap(err, "recording session")
	}
	return ctx.JSON(http.StatusCreated, newSessionResource(ses))
}

func (api *schoolApi) retrieveSession(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	ses, err := api.svc.GetSession(ctx.Request().Context(), instructorID, id)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, newSessionResource(ses))
}

func (api *schoolApi) updateSession(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	var data UpdateSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSessionRequest")
	}
	us, err := data.toUpdateSession()
	if err != nil {
		return err
	}

	ses, err := api.svc.UpdateSession(ctx.Request().Context(), instructorID, id, us)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, newSessionResource(ses))
}

func (api *schoolApi) destroySession(ctx echo.Context) error {
	instructorID, err := getContextInstructorID(ctx)
	if err != nil {
		return err
	}
	id, err := objectID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.DeleteSession(ctx.Request().Context(), instructorID, id); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

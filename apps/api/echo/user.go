package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/user"
)

type authApi struct {
	svc      user.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc user.Service, validate *validator.Validate) {
	api := authApi{
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	// TODO: rate limit `/login` & `/password_reset`
	ag.POST("/login", api.login)
	ag.POST("/refresh", api.refresh)
	ag.POST("/password_reset", api.requestPasswordReset)
	ag.POST("/password_reset/confirm/:uid/:token", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/logout", api.logout, jwt, accessTokenMiddleware())
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := authenticate(ctx, data.Email, data.Password, api.svc)
	if err != nil {
		return err
	}
	access, refresh, err := generateTokenPair(usr)
	if err != nil {
		return errors.Wrap(err, "generating token pair")
	}

	return ctx.JSON(http.StatusOK, TokenPairResponse{Access: access, Refresh: refresh})
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	access, err := refreshAccessToken(ctx, data.Refresh, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, AccessResponse{Access: access})
}

// logout only acknowledges the client's intent; tokens are stateless and
// expire on their own.
func (api *authApi) logout(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, DetailResponse{Detail: "logout exitoso"})
}

func (api *authApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// an unknown email is reported as 404, matching the lookup semantics of
	// the rest of the API
	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, DetailResponse{
		Detail: "se ha enviado un correo con instrucciones para restablecer la contraseña",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	data.UID = ctx.Param("uid")
	data.Token = ctx.Param("token")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, DetailResponse{Detail: "la contraseña ha sido restablecida"})
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	TokenPairResponse struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}

	RefreshRequest struct {
		Refresh string `json:"refresh" validate:"required"`
	}

	AccessResponse struct {
		Access string `json:"access"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	DetailResponse struct {
		Detail string `json:"detail"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (rr *RefreshRequest) Validate(validate *validator.Validate) error {
	rr.Refresh = core.CleanString(rr.Refresh)
	return validate.Struct(rr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

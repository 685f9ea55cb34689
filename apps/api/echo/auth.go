package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/user"
)

var (
	// jwtConfig is the default JWT auth middleware config; the signing key
	// and expiration deltas are filled in from config at server setup.
	jwtConfig = middleware.JWTConfig{
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
	appName                   string
	jwtExpirationDelta        time.Duration
	jwtRefreshExpirationDelta time.Duration

	errNoUserExists       = "no existe un usuario con ese correo"
	errWrongPassword      = "contraseña incorrecta"
	errInactiveUser       = "usuario inactivo"
	errInvalidRefreshText = "token inválido o expirado"
)

func configureAuth(conf *core.Config) {
	jwtConfig.SigningKey = conf.SecretKey
	appName = conf.AppName
	jwtExpirationDelta = conf.Server.JWTExpirationDelta
	jwtRefreshExpirationDelta = conf.Server.JWTRefreshExpirationDelta
}

// Claims represents the authorization claims transmitted via a JWT. Refresh
// marks the long-lived half of the token pair; it cannot be used as an
// access token.
type Claims struct {
	jwt.StandardClaims
	Email   string `json:"email,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
}

func getUserClaims(usr user.User, refresh bool) *Claims {
	now := time.Now()
	delta := jwtExpirationDelta
	if refresh {
		delta = jwtRefreshExpirationDelta
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    appName,
			Subject:   usr.ID.String(),
			ExpiresAt: now.Add(delta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:   usr.Email,
		Refresh: refresh,
	}
}

// authenticate checks the credentials and records the login. The three
// failure modes are deliberately reported the same way, as field-less
// validation errors.
func authenticate(ctx echo.Context, email, pwd string, svc user.Service) (user.User, error) {
	c := ctx.Request().Context()

	usr, err := svc.GetByEmail(c, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewValidationError(errors.New(errNoUserExists))
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, core.NewValidationError(errors.New(errWrongPassword))
	}
	if !usr.IsActive {
		return user.User{}, core.NewValidationError(errors.New(errInactiveUser))
	}
	usr, err = svc.SetLastLogin(c, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

// generateTokenPair issues the short-lived access token and its long-lived
// refresh counterpart.
func generateTokenPair(usr user.User) (access, refresh string, err error) {
	if access, err = GenerateToken(getUserClaims(usr, false)); err != nil {
		return "", "", err
	}
	if refresh, err = GenerateToken(getUserClaims(usr, true)); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// refreshAccessToken validates a refresh token and issues a new access token
// for its user.
func refreshAccessToken(ctx echo.Context, tokenStr string, svc user.Service) (string, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwtConfig.SigningMethod {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return jwtConfig.SigningKey, nil
	})
	if err != nil || !token.Valid || !claims.Refresh {
		return "", core.NewValidationError(errors.New(errInvalidRefreshText))
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", core.NewValidationError(errors.New(errInvalidRefreshText))
	}
	usr, err := svc.GetByID(ctx.Request().Context(), uid)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", core.NewValidationError(errors.New(errInvalidRefreshText))
		}
		return "", errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return "", core.NewValidationError(errors.New(errInactiveUser))
	}
	return GenerateToken(getUserClaims(usr, false))
}

// accessTokenMiddleware runs after the JWT middleware and rejects refresh
// tokens presented as access tokens.
func accessTokenMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.Refresh {
				return errUnauthorized
			}
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextInstructorID returns the authenticated instructor's ID; every
// scoped query keys off it.
func getContextInstructorID(ctx echo.Context) (uuid.UUID, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, errUnauthorized
	}
	return uid, nil
}

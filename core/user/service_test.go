package user_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruben-Andrade-Huerta/Unitrack/core"
	"github.com/Ruben-Andrade-Huerta/Unitrack/core/user"
	appfs "github.com/Ruben-Andrade-Huerta/Unitrack/fs"
	emailsvc "github.com/Ruben-Andrade-Huerta/Unitrack/services/email"
	inmemdb "github.com/Ruben-Andrade-Huerta/Unitrack/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func newTestConfig() *core.Config {
	conf := &core.Config{
		Debug:            true,
		TestMode:         true,
		AppName:          "Unitrack",
		SecretKey:        []byte("s3cr3t-t3st-k3y"),
		DefaultFromEmail: "noreply@unitrack.test",
		FrontendBaseURL:  "https://unitrack.test",
	}
	conf.Server.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	return conf
}

func newTestService(t *testing.T) user.Service {
	t.Helper()

	conf := newTestConfig()
	core.ParseEmailTemplates(appfs.FS, conf, nopLogger{})
	emailsvc.ClearSentMessages()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	return user.NewService(inmemdb.NewUserRepository(db), emailsvc.NewConsoleServiceMock(conf), conf)
}

var resetLinkRx = regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`)

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	usr, err := svc.Create(ctx, user.NewUser{Name: "Rubén Andrade", Email: "ruben@test.mx", Password: "s3cret"})
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("s3cret"))
	assert.Error(t, usr.CheckPassword("wrong"))

	// duplicate email
	_, err = svc.Create(ctx, user.NewUser{Name: "Otro", Email: "ruben@test.mx", Password: "s3cret"})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	usr, err := svc.Create(ctx, user.NewUser{Name: "Rubén Andrade", Email: "ruben@test.mx", Password: "s3cret"})
	require.NoError(t, err)

	// unknown email is propagated, not hidden
	err = svc.RequestPasswordReset(ctx, "unknown@test.mx")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	assert.Empty(t, emailsvc.SentMessages)

	require.NoError(t, svc.RequestPasswordReset(ctx, usr.Email))
	require.Len(t, emailsvc.SentMessages, 1)

	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Recuperar contraseña", msg.Subject)
	match := resetLinkRx.FindStringSubmatch(msg.TextContent)
	require.NotNil(t, match, "reset link not found in mail body")
	uid, token := match[1], match[2]
	assert.Equal(t, usr.ID.String(), uid)

	// wrong token fails
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: "lol-token", Password: "newpass"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "expected a validation error, got %v", err)

	// unknown uid fails
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: "lol", Token: token, Password: "newpass"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	// happy path
	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "newpass"}))
	refreshed, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("newpass"))
	assert.Error(t, refreshed.CheckPassword("s3cret"))

	// the token is consumed by the password change
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "again"})
	require.True(t, errors.As(err, &vErr), "expected a validation error, got %v", err)
}

func TestService_SetLastLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	usr, err := svc.Create(ctx, user.NewUser{Name: "Rubén Andrade", Email: "ruben@test.mx", Password: "s3cret"})
	require.NoError(t, err)
	require.True(t, usr.LastLogin.IsZero())

	usr, err = svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}

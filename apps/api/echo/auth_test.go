package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emailsvc "github.com/Ruben-Andrade-Huerta/Unitrack/services/email"
)

func parseClaims(t *testing.T, tokenStr string) *Claims {
	t.Helper()

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tk *jwt.Token) (interface{}, error) {
		return jwtConfig.SigningKey, nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	return claims
}

func Test_authApi_login(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)
	createInstructor(t, app.usrRepo, "In Active", "inactive@test.mx", "s3cret", false)

	tests := []httpTest{
		{
			name: "empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"this field is required","password":"this field is required"}`),
		},
		{
			name: "unknown email", body: []byte(`{"email":"lol@test.mx","password":"s3cret"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"no existe un usuario con ese correo"}`),
		},
		{
			name: "wrong password", body: []byte(`{"email":"ruben@test.mx","password":"lol"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"contraseña incorrecta"}`),
		},
		{
			name: "inactive user", body: []byte(`{"email":"inactive@test.mx","password":"s3cret"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"usuario inactivo"}`),
		},
		{name: "success", body: []byte(`{"email":"ruben@test.mx","password":"s3cret"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/login", tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var pair TokenPairResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

			access := parseClaims(t, pair.Access)
			assert.False(t, access.Refresh)
			assert.Equal(t, usr.ID.String(), access.Subject)
			assert.Equal(t, usr.Email, access.Email)

			refresh := parseClaims(t, pair.Refresh)
			assert.True(t, refresh.Refresh)
			assert.Equal(t, usr.ID.String(), refresh.Subject)
			assert.Greater(t, refresh.ExpiresAt, access.ExpiresAt)

			// a successful login records the time
			refreshed, err := app.usrSvc.GetByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.False(t, refreshed.LastLogin.IsZero())
		})
	}
}

func Test_authApi_refresh(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)
	inactive := createInstructor(t, app.usrRepo, "In Active", "inactive@test.mx", "s3cret", false)

	tests := []httpTest{
		{
			name: "empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"refresh":"this field is required"}`),
		},
		{
			name: "garbage token", body: []byte(`{"refresh":"lol.lol.lol"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"token inválido o expirado"}`),
		},
		{
			name: "access token rejected", body: marchallObj(t, RefreshRequest{Refresh: getToken(t, usr)}), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"token inválido o expirado"}`),
		},
		{
			name: "inactive user", body: marchallObj(t, RefreshRequest{Refresh: getRefreshToken(t, inactive)}), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"usuario inactivo"}`),
		},
		{name: "success", body: marchallObj(t, RefreshRequest{Refresh: getRefreshToken(t, usr)}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/refresh", tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res AccessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			claims := parseClaims(t, res.Access)
			assert.False(t, claims.Refresh)
			assert.Equal(t, usr.ID.String(), claims.Subject)
		})
	}
}

func Test_authApi_logout(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "refresh token rejected", token: getRefreshToken(t, usr), wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error":"user not authenticated"}`),
		},
		{
			name: "success", token: getToken(t, usr), wantCode: http.StatusOK,
			wantData: []byte(`{"detail":"logout exitoso"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/auth/logout", tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

var resetLinkRx = regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`)

func Test_authApi_passwordReset(t *testing.T) {
	app := setup(t)

	usr := createInstructor(t, app.usrRepo, "Rubén Andrade", "ruben@test.mx", "s3cret", true)

	tests := []httpTest{
		{
			name: "invalid email", body: []byte(`{"email":"lol"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"email must be a valid email address"}`),
		},
		{
			name: "unknown email 404", body: []byte(`{"email":"lol@test.mx"}`), wantCode: http.StatusNotFound,
			wantData: []byte(`{"error":"not found"}`),
		},
		{
			name: "success", body: []byte(`{"email":"ruben@test.mx"}`), wantCode: http.StatusOK,
			wantData: []byte(`{"detail":"se ha enviado un correo con instrucciones para restablecer la contraseña"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/password_reset", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	require.Len(t, emailsvc.SentMessages, 1)
	match := resetLinkRx.FindStringSubmatch(emailsvc.SentMessages[0].TextContent)
	require.NotNil(t, match, "reset link not found in mail body")
	uid, token := match[1], match[2]
	require.Equal(t, usr.ID.String(), uid)

	confirmTests := []httpTest{
		{
			name: "missing password", path: "/v1/auth/password_reset/confirm/" + uid + "/" + token,
			body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"this field is required"}`),
		},
		{
			name: "bad token", path: "/v1/auth/password_reset/confirm/" + uid + "/lol-token",
			body: []byte(`{"password":"newpass"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"token inválido o expirado"}`),
		},
		{
			name: "unknown uid", path: "/v1/auth/password_reset/confirm/lol/" + token,
			body: []byte(`{"password":"newpass"}`), wantCode: http.StatusNotFound,
			wantData: []byte(`{"error":"not found"}`),
		},
		{
			name: "success", path: "/v1/auth/password_reset/confirm/" + uid + "/" + token,
			body: []byte(`{"password":"newpass"}`), wantCode: http.StatusOK,
			wantData: []byte(`{"detail":"la contraseña ha sido restablecida"}`),
		},
		{
			name: "token consumed", path: "/v1/auth/password_reset/confirm/" + uid + "/" + token,
			body: []byte(`{"password":"again"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"token inválido o expirado"}`),
		},
	}
	for _, tt := range confirmTests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// the new password works
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", []byte(`{"email":"ruben@test.mx","password":"newpass"}`))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

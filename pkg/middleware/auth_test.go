package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "svc", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestBearerAuth(t *testing.T) {
	const secret = "s3cret"
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		header   string
		cookie   string
		wantCode int
	}{
		{name: "missing", wantCode: http.StatusUnauthorized},
		{name: "valid header", header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, future), wantCode: http.StatusOK},
		{name: "valid cookie", cookie: sign(t, secret, jwt.SigningMethodHS256, future), wantCode: http.StatusOK},
		{name: "wrong secret", header: "Bearer " + sign(t, "other", jwt.SigningMethodHS256, future), wantCode: http.StatusUnauthorized},
		{name: "wrong method", header: "Bearer " + sign(t, secret, jwt.SigningMethodHS512, future), wantCode: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour)), wantCode: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sub interface{}
			h := BearerAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, ok := Claims(r.Context())
				if ok {
					sub = claims["sub"]
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "svc", sub)
			} else {
				assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

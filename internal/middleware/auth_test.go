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

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestRequireRole(t *testing.T) {
	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireRole("secret", "admin")(next)

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signed(t, "other", jwt.MapClaims{"sub": "admin", "role": "admin", "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, "secret", jwt.MapClaims{"sub": "admin", "role": "admin", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"wrong role", "Bearer " + signed(t, "secret", jwt.MapClaims{"sub": "clerk", "role": "staff", "exp": exp}), http.StatusForbidden},
		{"ok", "Bearer " + signed(t, "secret", jwt.MapClaims{"sub": "admin", "role": "admin", "exp": exp}), http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/products/1", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "admin", gotSubject)
}

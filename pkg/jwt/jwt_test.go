package jwt_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/jwt"
)

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := jwt.New("")
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New("test-secret", jwt.WithIssuer("paywall"))
	require.NoError(t, err)

	token, err := svc.Issue("user-1", "u1@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "u1@example.com", claims.Email)
	assert.Equal(t, "paywall", claims.Issuer)

	_, err = svc.Issue("", "", time.Hour)
	assert.ErrorIs(t, err, jwt.ErrMissingSubject)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := jwt.New("secret-a", jwt.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	token, err := issuer.Issue("user-1", "", time.Minute)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		other, err := jwt.New("secret-b", jwt.WithClock(func() time.Time { return now }))
		require.NoError(t, err)
		_, err = other.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		later, err := jwt.New("secret-a", jwt.WithClock(func() time.Time { return now.Add(time.Hour) }))
		require.NoError(t, err)
		_, err = later.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := issuer.Parse("not.a.token")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		t.Parallel()
		strict, err := jwt.New("secret-a", jwt.WithIssuer("paywall"), jwt.WithClock(func() time.Time { return now }))
		require.NoError(t, err)
		_, err = strict.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New("test-secret")
	require.NoError(t, err)
	token, err := svc.Issue("user-7", "", time.Hour)
	require.NoError(t, err)

	var seen string
	h := jwt.Middleware(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = jwt.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		seen = ""
		req := httptest.NewRequest(http.MethodPost, "/v1/checkout", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.name)
		if tt.status == http.StatusOK {
			assert.Equal(t, "user-7", seen, tt.name)
		}
	}
}

func TestUserID_Anonymous(t *testing.T) {
	t.Parallel()
	assert.Empty(t, jwt.UserID(context.Background()))
}

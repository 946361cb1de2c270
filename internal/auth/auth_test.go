package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/store/storetest"
)

func TestDigestIsStableHex(t *testing.T) {
	d := auth.Digest("abc")
	assert.Len(t, d, 64)
	assert.Equal(t, d, auth.Digest("abc"))
	assert.NotEqual(t, d, auth.Digest("abd"))
}

func TestStoreResolver(t *testing.T) {
	f := storetest.Seed(t, engine.DeckSeries)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := auth.StoreResolver{Store: f.Store, Now: func() time.Time { return now }}

	token, err := r.Issue(ctx, f.Alice.ID, time.Hour)
	require.NoError(t, err)

	u, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, f.Alice.ID, u.ID)

	_, err = r.Resolve(ctx, "nope")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	later := auth.StoreResolver{Store: f.Store, Now: func() time.Time { return now.Add(2 * time.Hour) }}
	_, err = later.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestJWTResolver(t *testing.T) {
	f := storetest.Seed(t, engine.DeckSeries)
	ctx := context.Background()
	r := auth.JWTResolver{Secret: []byte("s3cret"), Users: f.Store}

	token, err := r.Issue(f.Manager.ID, time.Minute)
	require.NoError(t, err)

	u, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, f.Manager.Email, u.Email)

	other := auth.JWTResolver{Secret: []byte("different"), Users: f.Store}
	_, err = other.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	expired := auth.JWTResolver{Secret: []byte("s3cret"), Users: f.Store,
		Now: func() time.Time { return time.Now().Add(-time.Hour) }}
	old, err := expired.Issue(f.Manager.ID, time.Minute)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, old)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	ghost, err := r.Issue(4242, time.Minute)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, ghost)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = auth.JWTResolver{}.Issue(1, time.Minute)
	assert.ErrorIs(t, err, auth.ErrNoJWTSecret)
}

func TestRequireMiddleware(t *testing.T) {
	f := storetest.Seed(t, engine.DeckSeries)
	ctx := context.Background()
	tokens := auth.StoreResolver{Store: f.Store}
	jwts := auth.JWTResolver{Secret: []byte("k"), Users: f.Store}

	opaque, err := tokens.Issue(ctx, f.Alice.ID, time.Hour)
	require.NoError(t, err)
	signed, err := jwts.Issue(f.Manager.ID, time.Hour)
	require.NoError(t, err)

	a := &auth.Authenticator{Token: tokens, Bearer: jwts}
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.UserFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(u.Email))
	}))

	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{"token header", "Token " + opaque, "", http.StatusOK, f.Alice.Email},
		{"bearer header", "Bearer " + signed, "", http.StatusOK, f.Manager.Email},
		{"query token", "", opaque, http.StatusOK, f.Alice.Email},
		{"query jwt", "", signed, http.StatusOK, f.Manager.Email},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"unknown scheme", "Basic " + opaque, "", http.StatusUnauthorized, ""},
		{"wrong token", "Token deadbeef", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/x"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

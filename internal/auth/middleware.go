package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/models"
)

const (
	SchemeToken  = "Token"
	SchemeBearer = "Bearer"
)

// Authenticator picks the resolver for a request's credential. Bearer is
// optional; without it JWTs are refused.
type Authenticator struct {
	Token  Resolver
	Bearer Resolver
	Log    *zap.Logger
}

// credential extracts scheme and value from the Authorization header, or
// from the token query parameter for websocket upgrades.
func credential(r *http.Request) (scheme, value string) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, value, _ = strings.Cut(h, " ")
		return scheme, strings.TrimSpace(value)
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		if strings.Count(q, ".") == 2 {
			return SchemeBearer, q
		}
		return SchemeToken, q
	}
	return "", ""
}

func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (models.User, error) {
	scheme, value := credential(r)
	if value == "" {
		return models.User{}, ErrUnauthenticated
	}

	switch {
	case strings.EqualFold(scheme, SchemeToken) && a.Token != nil:
		return a.Token.Resolve(ctx, value)
	case strings.EqualFold(scheme, SchemeBearer) && a.Bearer != nil:
		return a.Bearer.Resolve(ctx, value)
	default:
		return models.User{}, ErrUnauthenticated
	}
}

// Require rejects requests without a valid credential and stores the user
// in the request context for the rest.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r.Context(), r)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) && a.Log != nil {
				a.Log.Error("authenticate request", zap.String("path", r.URL.Path), zap.Error(err))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrUnauthenticated.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

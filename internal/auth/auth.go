// Package auth resolves request credentials to users.
//
// Two credential kinds are accepted: opaque tokens issued by the server
// (stored as blake2b digests) and HMAC-signed JWTs whose subject is the
// user id. HTTP routes send them as "Authorization: Token <t>" or
// "Authorization: Bearer <jwt>"; websocket clients pass ?token=<t>.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrNoJWTSecret     = errors.New("jwt secret not configured")
)

// Resolver maps one raw credential to a user.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (models.User, error)
}

type TokenStore interface {
	UserByTokenDigest(ctx context.Context, digest string, now time.Time) (models.User, error)
	SaveToken(ctx context.Context, userID uint, digest string, expiresAt time.Time) error
}

type UserLookup interface {
	UserByID(ctx context.Context, id uint) (models.User, error)
}

// Digest is the stored form of an opaque token.
func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type StoreResolver struct {
	Store TokenStore
	Now   func() time.Time
}

func (r StoreResolver) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r StoreResolver) Resolve(ctx context.Context, credential string) (models.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return models.User{}, ErrUnauthenticated
	}
	u, err := r.Store.UserByTokenDigest(ctx, Digest(credential), r.now())
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUnauthenticated
	}
	if err != nil {
		return models.User{}, fmt.Errorf("resolve token: %w", err)
	}
	return u, nil
}

// Issue creates a fresh opaque token for userID. Only its digest is stored.
func (r StoreResolver) Issue(ctx context.Context, userID uint, ttl time.Duration) (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := r.Store.SaveToken(ctx, userID, Digest(token), r.now().Add(ttl)); err != nil {
		return "", err
	}
	return token, nil
}

type JWTResolver struct {
	Secret []byte
	Users  UserLookup
	Now    func() time.Time
}

func (r JWTResolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r JWTResolver) Resolve(ctx context.Context, credential string) (models.User, error) {
	if len(r.Secret) == 0 {
		return models.User{}, ErrNoJWTSecret
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(credential), &claims, func(*jwt.Token) (any, error) {
		return r.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return models.User{}, fmt.Errorf("%w: bad subject %q", ErrUnauthenticated, claims.Subject)
	}

	u, err := r.Users.UserByID(ctx, uint(id))
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUnauthenticated
	}
	if err != nil {
		return models.User{}, fmt.Errorf("resolve jwt user: %w", err)
	}
	return u, nil
}

// Issue signs a token for userID valid for ttl.
func (r JWTResolver) Issue(userID uint, ttl time.Duration) (string, error) {
	if len(r.Secret) == 0 {
		return "", ErrNoJWTSecret
	}
	now := r.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.Secret)
}

type userContextKey struct{}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFrom returns the authenticated user stored by the middleware.
func UserFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(models.User)
	return u, ok && u.ID != 0
}

// Package auth resolves the bearer token on a request to the identity of
// the user making it.
package auth

import (
	"blogapp/storage/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	NoTokenMessage      = "No token, authorization denied"
	InvalidTokenMessage = "Token is not valid"
)

var ErrNoUserId = errors.New("token carries no user id")

// Identity is the authenticated caller.
type Identity struct {
	Id    string
	Name  string
	Email string
}

// Claims are the token claims issued by the account service. Older tokens
// carry the user id only in the subject.
type Claims struct {
	UserId string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) userId() string {
	if c.UserId != "" {
		return c.UserId
	}
	return c.Subject
}

// UserResolver looks up the account a token refers to.
type UserResolver interface {
	GetUser(ctx context.Context, userId string) (*models.User, error)
}

// AuthenticatedHandler is a handler that runs only for an authenticated caller.
type AuthenticatedHandler func(w http.ResponseWriter, r *http.Request, identity Identity)

type Authenticator struct {
	secret []byte
	users  UserResolver
}

func NewAuthenticator(secret []byte, users UserResolver) *Authenticator {
	return &Authenticator{secret: secret, users: users}
}

// Authenticate verifies token and resolves it to an existing user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	userId := claims.userId()
	if userId == "" {
		return Identity{}, ErrNoUserId
	}
	user, err := a.users.GetUser(ctx, userId)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to resolve user %s: %w", userId, err)
	}
	return Identity{Id: user.Id, Name: user.Name, Email: user.Email}, nil
}

// Require wraps next so that it only runs with a valid bearer token. Requests
// without one are answered with 401 and never reach next.
func (a *Authenticator) Require(next AuthenticatedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeUnauthorized(w, NoTokenMessage)
			return
		}
		identity, err := a.Authenticate(r.Context(), token)
		if err != nil {
			slog.Warn("authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			writeUnauthorized(w, InvalidTokenMessage)
			return
		}
		recordIdentity(r.Context(), identity)
		next(w, r, identity)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

type contextKey string

var identityContextKey = contextKey("identity")

// WithIdentitySlot prepares ctx to record the identity resolved further down
// the handler chain, so that outer middleware such as the access log can
// read it after the request has been served.
func WithIdentitySlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityContextKey, &Identity{})
}

func recordIdentity(ctx context.Context, identity Identity) {
	if slot, ok := ctx.Value(identityContextKey).(*Identity); ok {
		*slot = identity
	}
}

// IdentityFromContext returns the identity recorded in a slot created by
// WithIdentitySlot, if authentication happened.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	slot, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || slot.Id == "" {
		return Identity{}, false
	}
	return *slot, true
}

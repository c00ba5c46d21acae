// Package auth implements the credential store and the Basic auth gate that
// establishes the acting identity for each request.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// User is a single account record, immutable after load.
type User struct {
	Username       string
	Password       string // plaintext credential; empty when PasswordBcrypt is set
	PasswordBcrypt string // bcrypt hash; empty when Password is set
	Home           string // absolute path the user is confined to
	WriteAccess    bool
	DeleteAccess   bool
}

// Store is an immutable username -> User mapping built once at startup.
// Safe for unsynchronized concurrent reads.
type Store struct {
	users map[string]User
}

// NewStore builds a Store from the loaded user records.
func NewStore(users []User) (*Store, error) {
	m := make(map[string]User, len(users))
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("user with empty username")
		}
		if _, ok := m[u.Username]; ok {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		m[u.Username] = u
	}
	return &Store{users: m}, nil
}

// Lookup returns the record for username.
func (s *Store) Lookup(username string) (User, bool) {
	u, ok := s.users[username]
	return u, ok
}

type ctxKey string

const userKey ctxKey = "homefs.user"

// UserFromContext returns the authenticated username, or "" when the
// request never passed the gate.
func UserFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

// WithUser attaches the acting identity to the context.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey, username)
}

// Middleware returns the authentication gate. It intercepts every request
// before routing: a valid Basic credential attaches the username to the
// request context, anything else is rejected with a 401 challenge. No
// session state is kept; every request re-authenticates.
func Middleware(store *Store, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := parseBasicAuth(r.Header.Get("Authorization"))
			if !ok {
				challenge(w, realm)
				return
			}
			u, ok := store.Lookup(username)
			if !ok || !verifyPassword(u, password) {
				challenge(w, realm)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), username)))
		})
	}
}

func challenge(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// verifyPassword compares the presented password against the user's
// credential. Both forms compare in constant time.
func verifyPassword(u User, password string) bool {
	if u.PasswordBcrypt != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordBcrypt), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
}

func parseBasicAuth(v string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	// The credential must split into exactly two fields; passwords with
	// embedded colons are rejected rather than guessed at.
	parts := strings.Split(string(raw), ":")
	if len(parts) != 2 {
		return "", "", false
	}
	u, p := parts[0], parts[1]
	if u == "" {
		return "", "", false
	}
	if strings.Contains(u, "\x00") || strings.Contains(p, "\x00") {
		return "", "", false
	}
	return u, p, true
}

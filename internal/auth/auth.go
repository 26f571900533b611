// Package auth checks operator credentials from a users file and issues the
// signed session token the web layer keeps in a cookie.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role controls what an operator may do.
type Role string

const (
	RoleAdmin Role = "admin" // may delete reports
	RoleUser  Role = "user"
)

// CanDelete reports whether the role may delete saved reports.
func (r Role) CanDelete() bool {
	return r == RoleAdmin
}

const (
	issuer     = "nocdash"
	defaultTTL = 12 * time.Hour
	bcryptCost = 12
)

// ErrInvalidCredentials is returned for an unknown user and for a wrong
// password alike.
var ErrInvalidCredentials = errors.New("auth: invalid username or password")

// User is one entry of the users file. Exactly one of Password (plain text,
// as older deployments stored it) or PasswordHash (bcrypt) is set.
type User struct {
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	Role         Role   `json:"role"`
}

type usersFile struct {
	Users []User `json:"users"`
}

// LoadUsers reads {"users":[...]} from path.
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read users: %w", err)
	}
	var f usersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("auth: parse users %s: %w", path, err)
	}
	return f.Users, nil
}

// Claims is the JWT payload.
type Claims struct {
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Identity is the authenticated operator attached to a request.
type Identity struct {
	Username  string
	Role      Role
	SessionID string
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets token lifetime. Default: 12h.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager authenticates users and signs tokens.
type Manager struct {
	users  map[string]User
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New validates the user list and returns a Manager signing with secret.
func New(users []User, secret string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is empty")
	}
	if len(users) == 0 {
		return nil, errors.New("auth: no users defined")
	}

	m := &Manager{
		users:  make(map[string]User, len(users)),
		secret: []byte(secret),
		ttl:    defaultTTL,
		now:    time.Now,
	}
	var errs []error
	for i, u := range users {
		switch {
		case u.Username == "":
			errs = append(errs, fmt.Errorf("user %d: username is empty", i))
		case u.Password == "" && u.PasswordHash == "":
			errs = append(errs, fmt.Errorf("user %q: no password", u.Username))
		case u.Role != RoleAdmin && u.Role != RoleUser:
			errs = append(errs, fmt.Errorf("user %q: unknown role %q", u.Username, u.Role))
		}
		if _, dup := m.users[u.Username]; dup {
			errs = append(errs, fmt.Errorf("user %q: defined twice", u.Username))
		}
		m.users[u.Username] = u
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Authenticate returns the user's role when the password matches.
func (m *Manager) Authenticate(username, password string) (Role, error) {
	u, ok := m.users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if u.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return "", ErrInvalidCredentials
		}
		return u.Role, nil
	}
	if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}
	return u.Role, nil
}

// Issue signs a token for the identity and returns it with its expiry.
func (m *Manager) Issue(id Identity) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		Username:  id.Username,
		Role:      id.Role,
		SessionID: id.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, exp, nil
}

// Parse validates a token and returns the identity it carries. The user must
// still exist in the users file.
func (m *Manager) Parse(token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: %w", err)
	}
	if _, ok := m.users[claims.Username]; !ok {
		return Identity{}, fmt.Errorf("auth: unknown user %q", claims.Username)
	}
	return Identity{Username: claims.Username, Role: claims.Role, SessionID: claims.SessionID}, nil
}

// HashPassword returns a bcrypt hash suitable for password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(b), err
}

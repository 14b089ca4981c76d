package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature covers malformed, tampered and wrongly signed tokens.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is only returned for tokens whose signature checked out.
	ErrExpired = errors.New("token expired")
)

type Claims struct {
	AccountID string   `json:"id"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity is what a verified token proves about its bearer.
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasAll reports whether every required role is present. No required roles always passes.
func (i Identity) HasAll(required ...string) bool {
	have := make(map[string]struct{}, len(i.Roles))
	for _, r := range i.Roles {
		have[r] = struct{}{}
	}

	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token carrying the account id and a snapshot of its roles.
func (m *Manager) Issue(accountID string, roles []string) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		AccountID: accountID,
		Roles:     append([]string(nil), roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks the signature first and expiry second, so a tampered token
// is always reported as ErrInvalidSignature whatever its claims say.
func (m *Manager) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		// exp is whole seconds and a token stays valid through its expiry second
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpired
		}
		return Identity{}, ErrInvalidSignature
	}

	if !token.Valid || claims.AccountID == "" {
		return Identity{}, ErrInvalidSignature
	}

	return Identity{ID: claims.AccountID, Roles: claims.Roles}, nil
}

// Package auth проверяет bearer-токены пользователей и хранит их личность в context.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// Role — роль пользователя.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Identity — проверенный пользователь запроса.
type Identity struct {
	UserID string
	Role   Role
}

// Claims — полезная нагрузка токена.
type Claims struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator выпускает и проверяет HS256-токены.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Issue выпускает токен (используется в тестах, loadtest и для выдачи dev-токенов).
func (a *Authenticator) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		ID:   userID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Parse проверяет подпись и срок токена.
func (a *Authenticator) Parse(tokenStr string) (Identity, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, domain.ErrTokenInvalid
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.ID == "" {
		return Identity{}, domain.ErrTokenInvalid
	}
	if c.Role != RoleAdmin && c.Role != RoleMember {
		return Identity{}, domain.ErrTokenInvalid
	}
	return Identity{UserID: c.ID, Role: c.Role}, nil
}

// Authenticate разбирает значение заголовка Authorization ("Bearer <token>").
func (a *Authenticator) Authenticate(header string) (Identity, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Identity{}, domain.ErrTokenMissing
	}
	return a.Parse(strings.TrimSpace(token))
}

// Allowed проверяет, что роль входит в список разрешённых.
func (i Identity) Allowed(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity кладёт пользователя в context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext достаёт пользователя из context.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

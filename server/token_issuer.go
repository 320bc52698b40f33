package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-coworking-session/server/loginsession"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var ErrTokenRevoked = errors.New("token revoked")

// memberClaims are carried by access tokens
type memberClaims struct {
	Space    string `json:"space"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

// tokenIssuer signs HS256 access tokens and keeps track of the ones it
// issued so they can be revoked in bulk.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	issued  map[string]time.Time // jti -> exp
	revoked map[string]time.Time
}

func newTokenIssuer(secret string, ttl time.Duration) *tokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &tokenIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		issued:  make(map[string]time.Time),
		revoked: make(map[string]time.Time),
	}
}

// issue returns a signed access token for session and its lifetime in seconds
func (ti *tokenIssuer) issue(session loginsession.Session) (string, int, error) {
	now := NowTimeFunc()
	exp := now.Add(ti.ttl)
	jti := uuid.New().String()

	claims := memberClaims{
		Space:    session.TenantID,
		Email:    session.Email,
		Name:     session.Name,
		Verified: session.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", 0, fmt.Errorf("[tokenIssuer issue] failed to sign token: %w", err)
	}

	ti.mu.Lock()
	ti.issued[jti] = exp
	ti.mu.Unlock()

	return signed, int(ti.ttl / time.Second), nil
}

// verify parses raw and rejects it when expired, badly signed or revoked
func (ti *tokenIssuer) verify(raw string) (*memberClaims, error) {
	claims := &memberClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(NowTimeFunc), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("[tokenIssuer verify] %w", err)
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	if _, revoked := ti.revoked[claims.ID]; revoked {
		return nil, fmt.Errorf("[tokenIssuer verify] %w", ErrTokenRevoked)
	}
	return claims, nil
}

// revokeAll revokes every unexpired token issued so far
func (ti *tokenIssuer) revokeAll() int {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	now := NowTimeFunc()
	n := 0
	for jti, exp := range ti.issued {
		if exp.After(now) {
			ti.revoked[jti] = exp
			n++
		}
		delete(ti.issued, jti)
	}
	for jti, exp := range ti.revoked {
		if !exp.After(now) {
			delete(ti.revoked, jti)
		}
	}
	return n
}

package loginsession

import (
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the server side of a member session, keyed by its current
// refresh token. A refresh rotates the key.
type Session struct {
	TenantID string
	UserID   string
	Email    string
	Name     string
	Verified bool

	RefreshToken string

	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repo interface {
	Upsert(tenantID, refreshToken string, session Session) error
	Get(tenantID, refreshToken string) (Session, error)
	Delete(tenantID, refreshToken string) error
	DeleteAll() int
}

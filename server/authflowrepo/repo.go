package authflowrepo

import (
	"errors"
	"time"
)

var ErrLinkNotFound = errors.New("magic link not found")

// MagicLink is a pending email verification for a member
type MagicLink struct {
	TenantID  string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Repo interface {
	Upsert(linkToken string, link *MagicLink) error
	Get(linkToken string) (*MagicLink, error)
	Delete(linkToken string) error
	// Latest returns the most recent link token issued for email
	Latest(tenantID, email string) (string, bool)
}

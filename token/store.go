package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-coworking-session/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Storage keys holding the session tokens
const (
	AccessTokenKey  = "coworking_access_token"
	RefreshTokenKey = "coworking_refresh_token"
	TenantKey       = "coworking_space_slug"
)

// Store is the single owner of the session tokens in a tab. Every component
// reads tokens through it at call time and writes them only through Write
// and Clear.
//
// A Store without storage is inert: writes are dropped and reads report
// absent. That is the expected state outside a host context, not an error.
type Store struct {
	storage storage.Storage
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewStore wraps s. s may be nil.
func NewStore(s storage.Storage) *Store {
	return &Store{
		storage: s,
		logger:  log.Logger.With().Str("component", "token-store").Logger(),
	}
}

// Storage returns the underlying storage, nil when inert
func (s *Store) Storage() storage.Storage {
	return s.storage
}

// Write overwrites access token, refresh token and tenant key.
func (s *Store) Write(ctx context.Context, accessToken, refreshToken, tenantKey string) error {
	if s.storage == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kv := range [][2]string{
		{AccessTokenKey, accessToken},
		{RefreshTokenKey, refreshToken},
		{TenantKey, tenantKey},
	} {
		if err := s.storage.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("[Store Write] failed to write %s: %w", kv[0], err)
		}
	}
	return nil
}

func (s *Store) ReadAccess(ctx context.Context) (string, bool) {
	return s.read(ctx, AccessTokenKey)
}

func (s *Store) ReadRefresh(ctx context.Context) (string, bool) {
	return s.read(ctx, RefreshTokenKey)
}

func (s *Store) ReadTenant(ctx context.Context) (string, bool) {
	return s.read(ctx, TenantKey)
}

// Clear removes all three keys in one storage call.
func (s *Store) Clear(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Remove(ctx, AccessTokenKey, RefreshTokenKey, TenantKey); err != nil {
		return fmt.Errorf("[Store Clear] %w", err)
	}
	return nil
}

// OAuth2Token returns the stored pair as an oauth2 bearer token, or nil when
// no access token is stored. Both tokens are read under one lock. Expiry is
// not tracked here.
func (s *Store) OAuth2Token(ctx context.Context) *oauth2.Token {
	if s.storage == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	access, ok := s.get(ctx, AccessTokenKey)
	if !ok {
		return nil
	}
	refresh, _ := s.get(ctx, RefreshTokenKey)
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if s.storage == nil {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, key)
}

// get expects s.mu to be held
func (s *Store) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		// unreadable storage is treated as an absent token
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to read token")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

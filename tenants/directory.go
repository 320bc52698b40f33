package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-coworking-session/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// SpaceInfoKey is the storage key of the cached space info
const SpaceInfoKey = "coworking_space_info"

// Fetcher loads the public info of a space from the API
type Fetcher interface {
	GetSpaceInfo(ctx context.Context, slug string) (*SpaceInfo, error)
}

// Directory caches SpaceInfo per slug. Each slug is fetched at most once per
// Directory; concurrent lookups of the same slug share one request. The most
// recently resolved space is persisted so a reloaded tab can show it before
// any request is made.
type Directory struct {
	fetcher Fetcher
	storage storage.Storage
	logger  zerolog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	spaces map[string]*SpaceInfo
}

// NewDirectory creates a directory. s may be nil, in which case nothing is
// persisted.
func NewDirectory(fetcher Fetcher, s storage.Storage) *Directory {
	return &Directory{
		fetcher: fetcher,
		storage: s,
		logger:  log.Logger.With().Str("component", "tenant-directory").Logger(),
		spaces:  make(map[string]*SpaceInfo),
	}
}

// Get returns the info for slug, fetching it on first use
func (d *Directory) Get(ctx context.Context, slug string) (*SpaceInfo, error) {
	if space, ok := d.cached(slug); ok {
		return space, nil
	}

	v, err, _ := d.group.Do(slug, func() (any, error) {
		if space, ok := d.cached(slug); ok {
			return space, nil
		}
		space, err := d.fetcher.GetSpaceInfo(ctx, slug)
		if err != nil {
			return nil, err
		}
		d.Put(ctx, space)
		return space, nil
	})
	if err != nil {
		return nil, fmt.Errorf("[Directory Get] %w", err)
	}
	copied := *v.(*SpaceInfo)
	return &copied, nil
}

// Put records space as known and persists it
func (d *Directory) Put(ctx context.Context, space *SpaceInfo) {
	if space == nil {
		return
	}
	copied := *space

	d.mu.Lock()
	d.spaces[space.Slug] = &copied
	d.mu.Unlock()

	if d.storage == nil {
		return
	}
	payload, err := json.Marshal(copied)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to encode space info")
		return
	}
	if err := d.storage.Set(ctx, SpaceInfoKey, string(payload)); err != nil {
		d.logger.Warn().Err(err).Str("tenant", space.Slug).Msg("failed to persist space info")
	}
}

// Persisted returns the last space info written to storage, if any
func (d *Directory) Persisted(ctx context.Context) (*SpaceInfo, bool) {
	return LoadPersisted(ctx, d.storage)
}

// LoadPersisted reads the cached space info from s
func LoadPersisted(ctx context.Context, s storage.Storage) (*SpaceInfo, bool) {
	if s == nil {
		return nil, false
	}
	raw, ok, err := s.Get(ctx, SpaceInfoKey)
	if err != nil || !ok || raw == "" {
		return nil, false
	}
	var space SpaceInfo
	if err := json.Unmarshal([]byte(raw), &space); err != nil || space.Slug == "" {
		return nil, false
	}
	return &space, true
}

func (d *Directory) cached(slug string) (*SpaceInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	space, ok := d.spaces[slug]
	if !ok {
		return nil, false
	}
	copied := *space
	return &copied, true
}

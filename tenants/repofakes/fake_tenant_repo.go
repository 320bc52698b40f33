package tenantrepofakes

import (
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/go-coworking-session/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	spaces map[string]*tenants.SpaceInfo
	lock   sync.RWMutex
}

func NewFakeTenantRepo(spaces ...*tenants.SpaceInfo) tenants.Repo {
	tr := &FakeTenantRepo{
		spaces: make(map[string]*tenants.SpaceInfo),
	}
	for _, s := range spaces {
		_ = tr.Upsert(s)
	}
	return tr
}

func (tr *FakeTenantRepo) Upsert(space *tenants.SpaceInfo) error {
	if space == nil || space.Slug == "" {
		return errors.New("space slug is required")
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()
	copied := *space
	tr.spaces[space.Slug] = &copied
	return nil
}

func (tr *FakeTenantRepo) Delete(slug string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	delete(tr.spaces, slug)
	return nil
}

func (tr *FakeTenantRepo) Get(slug string) (*tenants.SpaceInfo, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	space, ok := tr.spaces[slug]
	if !ok {
		return nil, tenants.ErrSpaceNotFound
	}
	copied := *space
	return &copied, nil
}

func (tr *FakeTenantRepo) List(offset, limit int) ([]*tenants.SpaceInfo, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	spaces := make([]*tenants.SpaceInfo, 0, len(tr.spaces))
	for _, s := range tr.spaces {
		copied := *s
		spaces = append(spaces, &copied)
	}

	sort.Slice(spaces, func(i, j int) bool {
		return spaces[i].Slug < spaces[j].Slug
	})

	if offset >= len(spaces) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(spaces) {
		end = len(spaces)
	}
	return spaces[offset:end], nil
}

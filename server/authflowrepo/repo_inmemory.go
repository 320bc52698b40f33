package authflowrepo

import (
	"fmt"
	"strings"
	"sync"
)

type InMemoryRepo struct {
	mu     sync.RWMutex
	links  map[string]*MagicLink
	latest map[string]string // tenantID|email -> link token
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		links:  make(map[string]*MagicLink),
		latest: make(map[string]string),
	}
}

func latestKey(tenantID, email string) string {
	return tenantID + "|" + strings.ToLower(email)
}

func (r *InMemoryRepo) Upsert(linkToken string, link *MagicLink) error {
	if linkToken == "" || link == nil {
		return fmt.Errorf("link token and link are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *link
	r.links[linkToken] = &copied
	r.latest[latestKey(link.TenantID, link.Email)] = linkToken
	return nil
}

func (r *InMemoryRepo) Get(linkToken string) (*MagicLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[linkToken]
	if !ok {
		return nil, ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (r *InMemoryRepo) Delete(linkToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if link, ok := r.links[linkToken]; ok {
		key := latestKey(link.TenantID, link.Email)
		if r.latest[key] == linkToken {
			delete(r.latest, key)
		}
	}
	delete(r.links, linkToken)
	return nil
}

func (r *InMemoryRepo) Latest(tenantID, email string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	linkToken, ok := r.latest[latestKey(tenantID, email)]
	return linkToken, ok
}

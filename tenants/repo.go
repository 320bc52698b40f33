package tenants

import "errors"

var ErrSpaceNotFound = errors.New("coworking space not found")

// Repo stores coworking spaces keyed by slug
type Repo interface {
	Upsert(space *SpaceInfo) error
	Delete(slug string) error
	Get(slug string) (*SpaceInfo, error)
	List(offset, limit int) ([]*SpaceInfo, error)
}

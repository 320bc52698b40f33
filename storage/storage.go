// Package storage provides the key/value areas that back a member session.
//
// A Storage is the Go counterpart of a browser tab's session storage: every
// component of one tab shares it, and nothing else writes to it. Tabs learn
// about each other's changes only through a Watcher, never by reading each
// other's storage.
package storage

import (
	"context"
	"time"
)

// Storage is a tab-scoped string key/value area.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes every given key in one step. Readers of the same
	// storage observe either all keys present or all removed.
	Remove(ctx context.Context, keys ...string) error
}

// Watcher is implemented by storages whose changes are observable from other
// tabs of the same origin.
type Watcher interface {
	// Watch streams change events made by other tabs until ctx is done.
	// Events raised by the watching tab itself are not delivered.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// ChangeEvent describes one key change in some tab. Values are deliberately
// not carried: the keys hold tokens.
type ChangeEvent struct {
	Key     string    `json:"key"`
	Removed bool      `json:"removed"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
}

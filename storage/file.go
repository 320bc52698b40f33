package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrSealedFile = errors.New("storage file cannot be opened with the configured key")

// File persists a tab's storage as a single JSON document so a session
// survives process restarts. With a key the document is sealed with
// secretbox before it touches disk.
type File struct {
	path string
	key  *[32]byte
	mu   sync.Mutex
}

var _ Storage = (*File)(nil)

// NewFile returns a file storage at path. key may be nil.
func NewFile(path string, key *[32]byte) *File {
	return &File{path: path, key: key}
}

// ParseKey decodes a hex secretbox key. An empty string yields a nil key.
func ParseKey(hexKey string) (*[32]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("[storage ParseKey] key is not hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("[storage ParseKey] key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.read()
	if err != nil {
		return err
	}
	items[key] = value
	return f.write(items)
}

func (f *File) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.read()
	if err != nil {
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := items[key]; ok {
			delete(items, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.write(items)
}

func (f *File) read() (map[string]string, error) {
	items := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[File read] %w", err)
	}
	if len(data) == 0 {
		return items, nil
	}

	if f.key != nil {
		if len(data) < nonceSize+secretbox.Overhead {
			return nil, ErrSealedFile
		}
		var nonce [nonceSize]byte
		copy(nonce[:], data[:nonceSize])
		opened, ok := secretbox.Open(nil, data[nonceSize:], &nonce, f.key)
		if !ok {
			return nil, ErrSealedFile
		}
		data = opened
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("[File read] corrupt storage file: %w", err)
	}
	return items, nil
}

func (f *File) write(items map[string]string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("[File write] %w", err)
	}

	if f.key != nil {
		var nonce [nonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("[File write] failed to generate nonce: %w", err)
		}
		data = secretbox.Seal(nonce[:], data, &nonce, f.key)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("[File write] %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("[File write] %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[File write] %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[File write] %w", err)
	}
	// rename keeps a concurrent reader from seeing a half written file
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("[File write] %w", err)
	}
	return nil
}

// In-memory asset storage.
//
// Information Hiding:
// - Radix index over refs hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and dry runs

package storage

import (
	"context"
	"sync"

	"github.com/richinex/strand/internal/dsa"
	"github.com/richinex/strand/model"
)

// MemoryStore implements AssetStore in memory, indexed by ref.
// Data is lost when process terminates.
type MemoryStore struct {
	mu     sync.RWMutex
	assets *dsa.Trie[model.Asset]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: dsa.NewTrie[model.Asset]()}
}

// Save stores a copy of the asset.
func (s *MemoryStore) Save(ctx context.Context, asset model.Asset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(asset.Data) == 0 {
		return "", ErrEmptyAsset
	}
	ref := assetRef(asset, contentHash(asset.Data))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid external mutations
	asset.Data = append([]byte(nil), asset.Data...)
	s.assets.Insert(ref, asset)
	return ref, nil
}

// Get returns the asset stored under ref.
func (s *MemoryStore) Get(ref string) (model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets.Get(ref)
	if !ok {
		return model.Asset{}, ErrNotFound
	}
	return asset, nil
}

// Refs lists all stored refs in sorted order.
func (s *MemoryStore) Refs() []string {
	return s.RefsWithPrefix("")
}

// RefsWithPrefix lists the refs under prefix, e.g. "images/", in sorted order.
func (s *MemoryStore) RefsWithPrefix(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assets.WithPrefix(prefix)
}

var _ AssetStore = (*MemoryStore)(nil)

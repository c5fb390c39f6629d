// Package dsa holds the index structures behind asset storage and note
// search.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie is an ordered index of slash-separated keys such as asset refs.
// Shared path prefixes ("images/", "speech/") are stored once.
//
// Not safe for concurrent use; callers hold their own lock.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates an empty index.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert stores value under key unless the key is already present.
// Reports whether the value was stored.
func (t *Trie[V]) Insert(key string, value V) bool {
	if _, found := t.tree.Get(key); found {
		return false
	}
	t.tree.Insert(key, value)
	return true
}

// Get looks up a key.
func (t *Trie[V]) Get(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// WithPrefix returns the keys starting with prefix in lexical order. An
// empty prefix returns every key.
func (t *Trie[V]) WithPrefix(prefix string) []string {
	keys := []string{}
	t.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return false
	})
	return keys
}

// Len returns the number of keys.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}

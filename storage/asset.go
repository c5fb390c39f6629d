// Package storage persists generated media assets.
//
// Information Hiding:
// - File naming and deduplication scheme hidden behind AssetStore
// - Index schema and SQLite access hidden behind AssetIndex
// - Allows swapping between memory and filesystem backends without API changes

package storage

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"path"

	"github.com/cespare/xxhash/v2"

	"github.com/richinex/strand/model"
)

// ErrEmptyAsset is returned when an asset has no data.
var ErrEmptyAsset = errors.New("asset has no data")

// ErrNotFound is returned when a ref names no stored asset.
var ErrNotFound = errors.New("asset not found")

// AssetStore persists assets and returns a ref for each: a slash-separated
// path relative to the store's root.
//
// Saving the same bytes twice returns the same ref, so a retried step does
// not leave duplicate files behind.
type AssetStore interface {
	Save(ctx context.Context, asset model.Asset) (string, error)
}

// contentHash uses xxHash for fast content hashing; it is non-cryptographic
// and only used for naming and deduplication.
func contentHash(data []byte) string {
	h := xxhash.Sum64(data)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return hex.EncodeToString(buf[:])
}

// assetRef names an asset by kind folder and content hash.
func assetRef(asset model.Asset, hash string) string {
	folder := "files"
	switch asset.Kind {
	case model.AssetImage:
		folder = "images"
	case model.AssetSpeech:
		folder = "speech"
	}
	ext := asset.Ext
	if ext == "" {
		ext = ".bin"
	}
	return path.Join(folder, hash+ext)
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/richinex/strand/model"
)

// IndexFileName is the SQLite index kept at the root of a FileStore.
const IndexFileName = "assets.db"

// FileStore writes assets under a root directory, named by content hash,
// and records each save in a SQLite index.
type FileStore struct {
	root   string
	index  *AssetIndex
	logger *slog.Logger
}

// OpenFileStore opens (creating if needed) a store rooted at dir.
func OpenFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	index, err := OpenIndex(filepath.Join(dir, IndexFileName))
	if err != nil {
		return nil, err
	}
	return &FileStore{root: dir, index: index, logger: logger}, nil
}

// Root returns the directory refs are relative to.
func (s *FileStore) Root() string {
	return s.root
}

// Index exposes the store's index for queries.
func (s *FileStore) Index() *AssetIndex {
	return s.index
}

// Save writes the asset unless a file with the same content already exists.
func (s *FileStore) Save(ctx context.Context, asset model.Asset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(asset.Data) == 0 {
		return "", ErrEmptyAsset
	}

	hash := contentHash(asset.Data)
	ref := assetRef(asset, hash)
	full := filepath.Join(s.root, filepath.FromSlash(ref))

	if _, err := os.Stat(full); os.IsNotExist(err) {
		if err := writeAtomic(full, asset.Data); err != nil {
			return "", err
		}
		s.logger.Debug("asset written", "ref", ref, "bytes", len(asset.Data), "run_id", asset.RunID)
	} else if err != nil {
		return "", fmt.Errorf("failed to stat asset: %w", err)
	}

	err := s.index.Record(ctx, AssetRecord{
		Ref:         ref,
		RunID:       asset.RunID,
		Kind:        string(asset.Kind),
		ContentHash: hash,
		MIMEType:    asset.MIMEType,
		ByteSize:    len(asset.Data),
		Prompt:      asset.Prompt,
		Provider:    asset.Provider,
		Model:       asset.Model,
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Path resolves a ref to an absolute file path.
func (s *FileStore) Path(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

// Close closes the index.
func (s *FileStore) Close() error {
	return s.index.Close()
}

// writeAtomic writes data to a temp file and renames it into place so a
// crash never leaves a partial asset under its final name.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create asset folder: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".asset-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move asset into place: %w", err)
	}
	return nil
}

var _ AssetStore = (*FileStore)(nil)

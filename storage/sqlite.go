// SQLite asset index.
//
// Information Hiding:
// - SQLite connection management hidden behind AssetIndex
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// AssetRecord is one indexed asset.
type AssetRecord struct {
	Ref         string
	RunID       string
	Kind        string
	ContentHash string
	MIMEType    string
	ByteSize    int
	Prompt      string
	Provider    string
	Model       string
	CreatedAt   time.Time
}

// AssetIndex records which assets were produced by which run.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type AssetIndex struct {
	db *sql.DB
}

// OpenIndex opens or creates a SQLite index at the given path.
// Creates parent directories if they don't exist.
func OpenIndex(path string) (*AssetIndex, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newIndex(db)
}

// NewIndexInMemory creates an in-memory index (useful for testing).
func NewIndexInMemory() (*AssetIndex, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each pooled connection would get its own empty :memory: database.
	db.SetMaxOpenConns(1)
	return newIndex(db)
}

func newIndex(db *sql.DB) (*AssetIndex, error) {
	idx := &AssetIndex{db: db}
	if err := idx.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (i *AssetIndex) Close() error {
	return i.db.Close()
}

func (i *AssetIndex) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS assets (
			ref TEXT NOT NULL,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			byte_size INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (ref, run_id)
		);

		CREATE INDEX IF NOT EXISTS idx_assets_run
		ON assets(run_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_assets_hash
		ON assets(content_hash);
	`

	if _, err := i.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts an asset. Recording the same ref twice for a run is a no-op.
func (i *AssetIndex) Record(ctx context.Context, rec AssetRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := i.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO assets
			(ref, run_id, kind, content_hash, mime_type, byte_size, prompt, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Ref, rec.RunID, rec.Kind, rec.ContentHash, rec.MIMEType, rec.ByteSize,
		rec.Prompt, rec.Provider, rec.Model, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record asset: %w", err)
	}
	return nil
}

// ListByRun returns the assets of one run in creation order.
func (i *AssetIndex) ListByRun(ctx context.Context, runID string) ([]AssetRecord, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT ref, run_id, kind, content_hash, mime_type, byte_size, prompt, provider, model, created_at
		FROM assets WHERE run_id = ? ORDER BY created_at, ref`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	records := []AssetRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}
	return records, nil
}

// FindByHash returns any record with the given content hash.
func (i *AssetIndex) FindByHash(ctx context.Context, hash string) (AssetRecord, error) {
	row := i.db.QueryRowContext(ctx, `
		SELECT ref, run_id, kind, content_hash, mime_type, byte_size, prompt, provider, model, created_at
		FROM assets WHERE content_hash = ? ORDER BY created_at LIMIT 1`, hash)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AssetRecord{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (AssetRecord, error) {
	var rec AssetRecord
	var created int64
	err := s.Scan(&rec.Ref, &rec.RunID, &rec.Kind, &rec.ContentHash, &rec.MIMEType,
		&rec.ByteSize, &rec.Prompt, &rec.Provider, &rec.Model, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AssetRecord{}, err
		}
		return AssetRecord{}, fmt.Errorf("failed to scan asset: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created)
	return rec, nil
}

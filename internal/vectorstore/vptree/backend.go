// Package vptree implements the native embedding backend: vectors are kept in
// the post_embeddings table and searched through a vantage-point tree whose
// serialized form is persisted in the vector_index table.
package vptree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"forumrag/internal/domain"
	"forumrag/internal/vectorstore/linear"
)

// Kind identifies this backend.
const Kind = "vptree"

const (
	indexName = "post_embeddings"
	schema    = `CREATE TABLE IF NOT EXISTS vector_index (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`
)

// Backend serves queries from an in-memory tree. Writes go to the row store
// and invalidate the tree; the next query rebuilds and re-persists it.
// Concurrent queries are safe.
type Backend struct {
	db     *sqlx.DB
	rows   *linear.Backend
	dim    int
	logger *slog.Logger

	mu    sync.RWMutex
	tree  *Tree
	dirty bool
}

// Open loads the persisted index. A blob that cannot be decoded, or that was
// built for another dimension, is reported as domain.ErrBackendUnavailable
// and deleted, so the next Open rebuilds from the stored rows.
func Open(ctx context.Context, db *sqlx.DB, rows *linear.Backend, dim int, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("%w: creating index table: %v", domain.ErrBackendUnavailable, err)
	}
	b := &Backend{db: db, rows: rows, dim: dim, logger: logger, dirty: true}

	var blob []byte
	err := db.GetContext(ctx, &blob, `SELECT data FROM vector_index WHERE name = ?`, indexName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("%w: reading index: %v", domain.ErrBackendUnavailable, err)
	}
	tree, err := Unmarshal(blob)
	if err != nil {
		b.discard(ctx, err)
		return nil, fmt.Errorf("%w: loading index: %v", domain.ErrBackendUnavailable, err)
	}
	if tree.dim != dim {
		err := fmt.Errorf("index built for dimension %d, store uses %d", tree.dim, dim)
		b.discard(ctx, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	n, err := rows.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	b.tree = tree
	b.dirty = tree.Len() != n
	logger.Debug("loaded vector index", "vectors", tree.Len(), "stale", b.dirty)
	return b, nil
}

func (b *Backend) discard(ctx context.Context, cause error) {
	b.logger.Warn("discarding unusable vector index", "error", cause)
	if _, err := b.db.ExecContext(ctx, `DELETE FROM vector_index WHERE name = ?`, indexName); err != nil {
		b.logger.Warn("failed to delete vector index", "error", err)
	}
}

// Kind returns "vptree".
func (b *Backend) Kind() string { return Kind }

// Insert writes vec to the row store and invalidates the persisted index.
func (b *Backend) Insert(ctx context.Context, id int64, vec []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.rows.Insert(ctx, id, vec); err != nil {
		return err
	}
	b.dirty = true
	if _, err := b.db.ExecContext(ctx, `DELETE FROM vector_index WHERE name = ?`, indexName); err != nil {
		b.logger.Warn("failed to invalidate persisted index", "error", err)
	}
	return nil
}

// Query returns the k nearest vectors, rebuilding the tree first if needed.
func (b *Backend) Query(ctx context.Context, vec []float32, k int) ([]domain.Neighbor, error) {
	if err := domain.CheckDimension(vec, b.dim); err != nil {
		return nil, err
	}
	b.mu.RLock()
	if !b.dirty {
		defer b.mu.RUnlock()
		return b.tree.Search(vec, k), nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty {
		if err := b.rebuild(ctx); err != nil {
			return nil, err
		}
	}
	return b.tree.Search(vec, k), nil
}

func (b *Backend) rebuild(ctx context.Context) error {
	var ids []int64
	var vecs [][]float32
	err := b.rows.Scan(ctx, func(id int64, v []float32) {
		ids = append(ids, id)
		vecs = append(vecs, v)
	})
	if err != nil {
		return err
	}
	tree, err := Build(b.dim, ids, vecs)
	if err != nil {
		return err
	}
	b.tree = tree
	b.dirty = false

	blob, err := tree.MarshalBinary()
	if err == nil {
		_, err = b.db.ExecContext(ctx,
			`INSERT INTO vector_index (name, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			indexName, blob)
	}
	if err != nil {
		b.logger.Warn("failed to persist vector index", "error", err)
	}
	b.logger.Debug("rebuilt vector index", "vectors", tree.Len())
	return nil
}

// Count returns the number of stored vectors.
func (b *Backend) Count(ctx context.Context) (int, error) { return b.rows.Count(ctx) }

// Close releases the in-memory tree.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree = nil
	b.dirty = true
	return nil
}

// Package linear implements the brute-force embedding backend: vectors live
// in a plain keyed SQLite table and every query compares against all rows.
package linear

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"forumrag/internal/domain"
	"forumrag/internal/vector"
)

// Kind identifies this backend.
const Kind = "linear"

const schema = `CREATE TABLE IF NOT EXISTS post_embeddings (
	id INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL
)`

// Backend is an exhaustive cosine scan over the post_embeddings table.
// It is not synchronized; callers serialize writes.
type Backend struct {
	db     *sqlx.DB
	dim    int
	logger *slog.Logger
}

// New ensures the embeddings table exists.
func New(ctx context.Context, db *sqlx.DB, dim int, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating embeddings table: %w", err)
	}
	return &Backend{db: db, dim: dim, logger: logger}, nil
}

// Kind returns "linear".
func (b *Backend) Kind() string { return Kind }

// Insert stores vec under id.
func (b *Backend) Insert(ctx context.Context, id int64, vec []float32) error {
	if err := domain.CheckDimension(vec, b.dim); err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO post_embeddings (id, embedding) VALUES (?, ?)`,
		id, vector.EncodeEmbedding(vec)); err != nil {
		return fmt.Errorf("inserting embedding %d: %w", id, err)
	}
	return nil
}

// Scan calls fn for every decodable stored vector in id order. Rows that
// fail to decode or have the wrong length are logged and skipped.
func (b *Backend) Scan(ctx context.Context, fn func(id int64, vec []float32)) error {
	type row struct {
		ID        int64  `db:"id"`
		Embedding []byte `db:"embedding"`
	}
	var rows []row
	if err := b.db.SelectContext(ctx, &rows, `SELECT id, embedding FROM post_embeddings ORDER BY id`); err != nil {
		return fmt.Errorf("reading embeddings: %w", err)
	}
	for _, r := range rows {
		vec, err := vector.DecodeEmbedding(r.Embedding)
		if err == nil {
			err = domain.CheckDimension(vec, b.dim)
		}
		if err != nil {
			b.logger.Warn("skipping unreadable embedding", "id", r.ID, "error", err)
			continue
		}
		fn(r.ID, vec)
	}
	return nil
}

// Query returns the k nearest stored vectors by cosine distance.
func (b *Backend) Query(ctx context.Context, vec []float32, k int) ([]domain.Neighbor, error) {
	if err := domain.CheckDimension(vec, b.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	var out []domain.Neighbor
	err := b.Scan(ctx, func(id int64, v []float32) {
		out = append(out, domain.Neighbor{ID: id, Distance: vector.CosineDistance(vec, v)})
	})
	if err != nil {
		return nil, err
	}
	return vector.TopK(out, k), nil
}

// Count returns the number of stored rows.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM post_embeddings`); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

// Close is a no-op; the database handle belongs to the caller.
func (b *Backend) Close() error { return nil }

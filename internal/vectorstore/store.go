// Package vectorstore is the embedding store: it owns the fixed collection
// dimension and routes inserts and queries to a native index when one can be
// opened, falling back to a linear scan otherwise.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"

	"forumrag/internal/domain"
	"forumrag/internal/vectorstore/linear"
	"forumrag/internal/vectorstore/qdrant"
	"forumrag/internal/vectorstore/vptree"
)

// Index names accepted in Options.Index.
const (
	IndexVPTree = vptree.Kind
	IndexQdrant = qdrant.Kind
	IndexNone   = "none"
)

const infoSchema = `CREATE TABLE IF NOT EXISTS store_info (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Options configures Open.
type Options struct {
	// Dim is the fixed vector dimension of the collection.
	Dim int
	// Index selects the native backend to probe: "vptree", "qdrant" or "none".
	Index  string
	Qdrant qdrant.Config
	Logger *slog.Logger
}

// Store is the embedding store. The backend kind is fixed for its lifetime.
type Store struct {
	backend Backend
	dim     int
	logger  *slog.Logger
}

// Open prepares the store on db. The recorded dimension must match
// opts.Dim. If the configured native index cannot be opened the failure is
// logged and the store uses the linear backend.
func Open(ctx context.Context, db *sqlx.DB, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", opts.Dim)
	}
	if _, err := db.ExecContext(ctx, infoSchema); err != nil {
		return nil, fmt.Errorf("creating store_info table: %w", err)
	}
	if err := checkDimension(ctx, db, opts.Dim); err != nil {
		return nil, err
	}

	rows, err := linear.New(ctx, db, opts.Dim, logger)
	if err != nil {
		return nil, err
	}
	backend, err := openNative(ctx, db, rows, opts, logger)
	if err != nil {
		logger.Warn("native vector index unavailable, using linear scan",
			"index", opts.Index, "error", err)
		backend = rows
	}
	recordBackend(ctx, db, backend.Kind(), logger)
	logger.Debug("embedding store opened", "backend", backend.Kind(), "dimension", opts.Dim)
	return &Store{backend: backend, dim: opts.Dim, logger: logger}, nil
}

func openNative(ctx context.Context, db *sqlx.DB, rows *linear.Backend, opts Options, logger *slog.Logger) (Backend, error) {
	switch opts.Index {
	case IndexVPTree:
		return vptree.Open(ctx, db, rows, opts.Dim, logger)
	case IndexQdrant:
		return qdrant.Open(ctx, opts.Qdrant, rows, opts.Dim, logger)
	case IndexNone, "":
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: unknown index %q", domain.ErrBackendUnavailable, opts.Index)
	}
}

func readInfo(ctx context.Context, db *sqlx.DB, key string) (string, bool, error) {
	var v string
	err := db.GetContext(ctx, &v, `SELECT value FROM store_info WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading store_info %s: %w", key, err)
	}
	return v, true, nil
}

func writeInfo(ctx context.Context, db *sqlx.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO store_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func checkDimension(ctx context.Context, db *sqlx.DB, dim int) error {
	v, ok, err := readInfo(ctx, db, "dimension")
	if err != nil {
		return err
	}
	if !ok {
		if err := writeInfo(ctx, db, "dimension", strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("recording dimension: %w", err)
		}
		return nil
	}
	stored, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("corrupt stored dimension %q: %w", v, err)
	}
	if stored != dim {
		return fmt.Errorf("opening embedding store: %w", &domain.DimensionError{Want: stored, Got: dim})
	}
	return nil
}

func recordBackend(ctx context.Context, db *sqlx.DB, kind string, logger *slog.Logger) {
	prev, ok, err := readInfo(ctx, db, "backend")
	if err != nil {
		logger.Warn("could not read recorded backend", "error", err)
		return
	}
	if ok && prev != kind {
		logger.Warn("embedding backend changed since last open; similarity scores are not comparable",
			"previous", prev, "current", kind)
	}
	if !ok || prev != kind {
		if err := writeInfo(ctx, db, "backend", kind); err != nil {
			logger.Warn("could not record backend", "error", err)
		}
	}
}

// Backend reports which backend kind was chosen at open time.
func (s *Store) Backend() string { return s.backend.Kind() }

// Dimension returns the fixed vector dimension.
func (s *Store) Dimension() int { return s.dim }

// Insert stores vec under id. No deduplication is performed.
func (s *Store) Insert(ctx context.Context, id int64, vec []float32) error {
	if err := domain.CheckDimension(vec, s.dim); err != nil {
		return err
	}
	return s.backend.Insert(ctx, id, vec)
}

// Query returns at most k neighbours ordered by ascending distance, ties by
// ascending id. k larger than the stored count returns everything.
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]domain.Neighbor, error) {
	if err := domain.CheckDimension(vec, s.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	return s.backend.Query(ctx, vec, k)
}

// Count returns the number of stored vectors.
func (s *Store) Count(ctx context.Context) (int, error) { return s.backend.Count(ctx) }

// Close releases backend resources. The database handle is not closed.
func (s *Store) Close() error { return s.backend.Close() }

// Package metadata persists forum post metadata in SQLite and assigns the
// document ids used as embedding keys.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"forumrag/internal/domain"
)

// DefaultAuthor is stored when a post has no author.
const DefaultAuthor = "Unknown"

const schema = `CREATE TABLE IF NOT EXISTS forum_posts_meta (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	post_date TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	comment_id TEXT NOT NULL DEFAULT ''
)`

const selectColumns = `SELECT id, source, author, post_date, text, comment_id FROM forum_posts_meta`

// Store is a SQLite-backed domain.DocumentStore.
type Store struct {
	db *sqlx.DB
}

// NewStore creates the metadata table if needed.
func NewStore(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating metadata table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores doc and returns its new id. doc.ID is ignored.
func (s *Store) Put(ctx context.Context, doc domain.Document) (int64, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return 0, domain.ErrEmptyText
	}
	if strings.TrimSpace(doc.Author) == "" {
		doc.Author = DefaultAuthor
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO forum_posts_meta (source, author, post_date, text, comment_id)
		 VALUES (:source, :author, :post_date, :text, :comment_id)`, doc)
	if err != nil {
		return 0, fmt.Errorf("saving post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saving post: %w", err)
	}
	return id, nil
}

// Get returns the document with the given id or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (domain.Document, error) {
	var doc domain.Document
	err := s.db.GetContext(ctx, &doc, selectColumns+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("loading post %d: %w", id, err)
	}
	return doc, nil
}

// GetMany loads all ids in one query. Unknown ids are absent from the map.
func (s *Store) GetMany(ctx context.Context, ids []int64) (map[int64]domain.Document, error) {
	out := make(map[int64]domain.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(selectColumns+` WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var docs []domain.Document
	if err := s.db.SelectContext(ctx, &docs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("loading posts: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

// Count returns the number of stored posts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM forum_posts_meta`); err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return n, nil
}

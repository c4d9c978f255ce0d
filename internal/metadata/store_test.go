package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumrag/internal/domain"
	"forumrag/internal/sqlitedb"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	s, err := NewStore(context.Background(), db)
	require.NoError(t, err)
	return s
}

func TestPutAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	id1, err := s.Put(ctx, domain.Document{Source: "forums.iracing.com", Author: "alice", Text: "first"})
	require.NoError(t, err)
	id2, err := s.Put(ctx, domain.Document{Source: "forums.iracing.com", Author: "bob", Text: "second"})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	doc, err := s.Get(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, domain.Document{ID: id2, Source: "forums.iracing.com", Author: "bob", Text: "second"}, doc)
}

func TestPutDefaultsAuthor(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	id, err := s.Put(ctx, domain.Document{Text: "anonymous post", Timestamp: "2024-01-05T10:00:00+00:00", ExternalID: "c-1"})
	require.NoError(t, err)

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthor, doc.Author)
	assert.Equal(t, "2024-01-05T10:00:00+00:00", doc.Timestamp)
	assert.Equal(t, "c-1", doc.ExternalID)
}

func TestPutRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.Put(ctx, domain.Document{Author: "x", Text: "  \n\t"})
	assert.ErrorIs(t, err, domain.ErrEmptyText)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetMissing(t *testing.T) {
	_, err := setupTestStore(t).Get(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	var ids []int64
	for _, text := range []string{"a", "b", "c"} {
		id, err := s.Put(ctx, domain.Document{Text: text})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := s.GetMany(ctx, []int64{ids[2], 999, ids[0]})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[ids[2]].Text)
	assert.Equal(t, "a", got[ids[0]].Text)
	_, ok := got[999]
	assert.False(t, ok)

	empty, err := s.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

package vectorstore

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumrag/internal/domain"
	"forumrag/internal/sqlitedb"
	"forumrag/internal/vectorstore/qdrant"
)

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })
	return db
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func randomVec(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestSelfSimilarity(t *testing.T) {
	ctx := context.Background()
	for _, index := range []string{IndexNone, IndexVPTree} {
		t.Run(index, func(t *testing.T) {
			s, err := Open(ctx, setupDB(t), Options{Dim: 8, Index: index})
			require.NoError(t, err)
			defer s.Close()

			r := rand.New(rand.NewSource(1))
			vecs := make([][]float32, 30)
			for i := range vecs {
				vecs[i] = randomVec(r, 8)
				require.NoError(t, s.Insert(ctx, int64(i+1), vecs[i]))
			}
			for i, v := range vecs {
				got, err := s.Query(ctx, v, 1)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, int64(i+1), got[0].ID)
				assert.InDelta(t, 0, got[0].Distance, 1e-6)
			}
		})
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	s, err := Open(ctx, db, Options{Dim: 4, Index: IndexVPTree})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, 1, []float32{1, 2, 3, 4}))
	assert.ErrorIs(t, s.Insert(ctx, 2, []float32{1, 2, 3}), domain.ErrDimensionMismatch)

	_, err = s.Query(ctx, []float32{1, 2, 3, 4, 5}, 3)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close())

	_, err = Open(ctx, db, Options{Dim: 8, Index: IndexVPTree})
	var dimErr *domain.DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Want)
	assert.Equal(t, 8, dimErr.Got)
}

func TestLinearAndIndexedAgree(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(99))
	dim := 12
	vecs := make([][]float32, 200)
	for i := range vecs {
		vecs[i] = randomVec(r, dim)
	}

	open := func(index string) *Store {
		s, err := Open(ctx, setupDB(t), Options{Dim: dim, Index: index})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		for i, v := range vecs {
			require.NoError(t, s.Insert(ctx, int64(i+1), v))
		}
		return s
	}
	lin := open(IndexNone)
	idx := open(IndexVPTree)
	assert.Equal(t, "linear", lin.Backend())
	assert.Equal(t, "vptree", idx.Backend())

	for trial := 0; trial < 20; trial++ {
		q := randomVec(r, dim)
		a, err := lin.Query(ctx, q, 10)
		require.NoError(t, err)
		b, err := idx.Query(ctx, q, 10)
		require.NoError(t, err)
		require.NotEmpty(t, a)
		assert.Equal(t, a[0].ID, b[0].ID)
		assert.Equal(t, a, b)
	}
}

func TestEmptyStoreAndLargeK(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, setupDB(t), Options{Dim: 2, Index: IndexVPTree})
	require.NoError(t, err)

	got, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0}))
	require.NoError(t, s.Insert(ctx, 2, []float32{0, 1}))
	got, err = s.Query(ctx, []float32{1, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTwoClusters(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, setupDB(t), Options{Dim: 3, Index: IndexVPTree})
	require.NoError(t, err)

	// ids 1-3 near the x axis, 4-6 near the y axis
	a := [][]float32{{1, 0.05, 0}, {0.98, 0.1, 0.02}, {1, 0, 0.08}}
	b := [][]float32{{0.05, 1, 0}, {0.1, 0.97, 0.03}, {0, 1, 0.06}}
	for i, v := range append(a, b...) {
		require.NoError(t, s.Insert(ctx, int64(i+1), v))
	}

	got, err := s.Query(ctx, []float32{1, 0.02, 0.01}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, n := range got {
		assert.Contains(t, []int64{1, 2, 3}, n.ID)
		assert.Greater(t, 1-n.Distance, 0.9)
	}
}

func TestFallbackOnCorruptIndex(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	s, err := Open(ctx, db, Options{Dim: 2, Index: IndexVPTree})
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0}))
	require.NoError(t, s.Close())

	_, err = db.Exec(`INSERT INTO vector_index (name, data) VALUES ('post_embeddings', x'00')`)
	require.NoError(t, err)

	logger, buf := bufferLogger()
	s, err = Open(ctx, db, Options{Dim: 2, Index: IndexVPTree, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "linear", s.Backend())
	assert.Contains(t, buf.String(), "native vector index unavailable")
	assert.Contains(t, buf.String(), "embedding backend changed")

	got, err := s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	require.NoError(t, s.Close())

	s, err = Open(ctx, db, Options{Dim: 2, Index: IndexVPTree})
	require.NoError(t, err)
	assert.Equal(t, "vptree", s.Backend())
	got, err = s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestFallbackOnUnreachableQdrant(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, setupDB(t), Options{
		Dim:    2,
		Index:  IndexQdrant,
		Qdrant: qdrant.Config{Host: "127.0.0.1", Port: 1, Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, "linear", s.Backend())
	require.NoError(t, s.Insert(ctx, 1, []float32{0, 1}))
}

func TestUnknownIndexFallsBack(t *testing.T) {
	s, err := Open(context.Background(), setupDB(t), Options{Dim: 2, Index: "faiss"})
	require.NoError(t, err)
	assert.Equal(t, "linear", s.Backend())
}

func TestInvalidDimension(t *testing.T) {
	_, err := Open(context.Background(), setupDB(t), Options{Dim: 0})
	assert.Error(t, err)
}

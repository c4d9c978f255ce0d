package vptree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumrag/internal/domain"
	"forumrag/internal/vector"
)

func randomVectors(r *rand.Rand, n, dim int) ([]int64, [][]float32) {
	ids := make([]int64, n)
	vecs := make([][]float32, n)
	for i := range vecs {
		ids[i] = int64(i + 1)
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		vecs[i] = v
	}
	return ids, vecs
}

func bruteForce(ids []int64, vecs [][]float32, q []float32, k int) []domain.Neighbor {
	out := make([]domain.Neighbor, len(ids))
	for i := range ids {
		out[i] = domain.Neighbor{ID: ids[i], Distance: vector.CosineDistance(q, vecs[i])}
	}
	return vector.TopK(out, k)
}

func TestSearchMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	ids, vecs := randomVectors(r, 300, 16)
	tree, err := Build(16, ids, vecs)
	require.NoError(t, err)
	assert.Equal(t, 300, tree.Len())

	for trial := 0; trial < 25; trial++ {
		_, qs := randomVectors(r, 1, 16)
		for _, k := range []int{1, 5, 17} {
			want := bruteForce(ids, vecs, qs[0], k)
			got := tree.Search(qs[0], k)
			assert.Equal(t, want, got, "trial %d k %d", trial, k)
		}
	}
}

func TestSearchReturnsAllWhenKExceedsSize(t *testing.T) {
	tree, err := Build(2, []int64{10, 20, 30}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	got := tree.Search([]float32{1, 0}, 50)
	require.Len(t, got, 3)
	assert.Equal(t, int64(10), got[0].ID)
}

func TestZeroNormVectors(t *testing.T) {
	tree, err := Build(2, []int64{1, 2, 3}, [][]float32{{0, 0}, {-1, 0}, {1, 0}})
	require.NoError(t, err)

	got := tree.Search([]float32{1, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 1.0, got[1].Distance)
	assert.InDelta(t, 2.0, got[2].Distance, 1e-12)

	zeroQuery := tree.Search([]float32{0, 0}, 2)
	assert.Equal(t, []domain.Neighbor{{ID: 1, Distance: 1}, {ID: 2, Distance: 1}}, zeroQuery)
}

func TestMarshalRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	ids, vecs := randomVectors(r, 40, 8)
	tree, err := Build(8, ids, vecs)
	require.NoError(t, err)

	blob, err := tree.MarshalBinary()
	require.NoError(t, err)
	loaded, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, tree.ids, loaded.ids)
	assert.Equal(t, tree.vecs, loaded.vecs)

	q := vecs[3]
	assert.Equal(t, tree.Search(q, 5), loaded.Search(q, 5))
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not an index"))
	assert.Error(t, err)

	tree, err := Build(2, []int64{1}, [][]float32{{1, 2}})
	require.NoError(t, err)
	blob, err := tree.MarshalBinary()
	require.NoError(t, err)
	_, err = Unmarshal(blob[:len(blob)-1])
	assert.Error(t, err)
}

func TestBuildRejectsRaggedVectors(t *testing.T) {
	_, err := Build(2, []int64{1, 2}, [][]float32{{1, 2}, {1, 2, 3}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSearchNearDuplicatesMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	const dim = 16
	for trial := 0; trial < 300; trial++ {
		base := make([]float32, dim)
		for j := range base {
			base[j] = float32(r.NormFloat64())
		}
		ids := make([]int64, 200)
		vecs := make([][]float32, 200)
		for i := range vecs {
			ids[i] = int64(i + 1)
			v := make([]float32, dim)
			for j := range v {
				v[j] = base[j] + float32(r.NormFloat64()*1e-3)
			}
			vecs[i] = v
		}
		tree, err := Build(dim, ids, vecs)
		require.NoError(t, err)

		q := make([]float32, dim)
		for j := range q {
			q[j] = base[j] + float32(r.NormFloat64()*1e-3)
		}
		want := bruteForce(ids, vecs, q, 3)
		got := tree.Search(q, 3)
		require.Equal(t, want, got, "trial %d", trial)
	}
}

func TestBuildAngleMatchesQueryAngle(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	ids, vecs := randomVectors(r, 20, 8)
	tree, err := Build(8, ids, vecs)
	require.NoError(t, err)
	for i := range vecs {
		for j := range vecs {
			assert.Equal(t, angle(vector.CosineSimilarity(vecs[i], vecs[j])), tree.buildAngle(i, j))
		}
	}
}

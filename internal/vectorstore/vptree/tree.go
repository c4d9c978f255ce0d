package vptree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"

	"forumrag/internal/domain"
	"forumrag/internal/vector"
)

// slack absorbs acos rounding at the pruning boundary. Build and query angles
// come from the same float64 cosine, so the error stays far below this.
const slack = 1e-6

var (
	blobMagic = [4]byte{'V', 'P', 'T', '1'}

	errCorruptIndex = errors.New("vptree: corrupt index blob")
)

// Tree is an exact kNN index over angular distance. Angular distance
// satisfies the triangle inequality, which makes vantage-point pruning
// exact; reported distances are cosine distances (1 - cos).
type Tree struct {
	dim  int
	ids  []int64
	vecs [][]float32
	// zero holds positions of zero-norm vectors; they stay outside the tree.
	zero []int
	root *node
}

type node struct {
	idx   int
	mu    float64
	left  *node
	right *node
}

// Build constructs a tree over the given vectors. ids and vecs are parallel.
func Build(dim int, ids []int64, vecs [][]float32) (*Tree, error) {
	if len(ids) != len(vecs) {
		return nil, errors.New("vptree: ids/vectors length mismatch")
	}
	t := &Tree{
		dim:  dim,
		ids:  append([]int64(nil), ids...),
		vecs: append([][]float32(nil), vecs...),
	}
	idxs := make([]int, 0, len(vecs))
	for i, v := range vecs {
		if len(v) != dim {
			return nil, &domain.DimensionError{Want: dim, Got: len(v)}
		}
		if search.Float32s(v).Magnitude() == 0 {
			t.zero = append(t.zero, i)
			continue
		}
		idxs = append(idxs, i)
	}
	t.root = t.build(idxs)
	return t, nil
}

// Len reports the number of indexed vectors.
func (t *Tree) Len() int { return len(t.ids) }

func (t *Tree) build(idxs []int) *node {
	if len(idxs) == 0 {
		return nil
	}
	vp := idxs[0]
	rest := idxs[1:]
	n := &node{idx: vp}
	if len(rest) == 0 {
		return n
	}
	dists := make(map[int]float64, len(rest))
	for _, j := range rest {
		dists[j] = t.buildAngle(vp, j)
	}
	sorted := append([]int(nil), rest...)
	sort.Slice(sorted, func(a, b int) bool {
		da, db := dists[sorted[a]], dists[sorted[b]]
		if da != db {
			return da < db
		}
		return sorted[a] < sorted[b]
	})
	mid := (len(sorted) - 1) / 2
	n.mu = dists[sorted[mid]]
	n.left = t.build(sorted[:mid+1])
	n.right = t.build(sorted[mid+1:])
	return n
}

// buildAngle must match the arithmetic Search uses for query angles, or the
// median radii drift from the distances they are compared against.
func (t *Tree) buildAngle(i, j int) float64 {
	return angle(vector.CosineSimilarity(t.vecs[i], t.vecs[j]))
}

func angle(cos float64) float64 {
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

type candidate struct {
	n     domain.Neighbor
	theta float64
}

// Search returns the k nearest vectors to q ordered by (distance, id).
func (t *Tree) Search(q []float32, k int) []domain.Neighbor {
	if k <= 0 || len(t.ids) == 0 {
		return nil
	}
	if vector.Norm(q) == 0 {
		// every similarity is 0: all vectors tie at distance 1
		out := make([]domain.Neighbor, len(t.ids))
		for i, id := range t.ids {
			out[i] = domain.Neighbor{ID: id, Distance: 1}
		}
		return vector.TopK(out, k)
	}

	var best []candidate
	push := func(c candidate) {
		if len(best) == k && !vector.Less(c.n, best[k-1].n) {
			return
		}
		pos := sort.Search(len(best), func(i int) bool { return vector.Less(c.n, best[i].n) })
		best = append(best, candidate{})
		copy(best[pos+1:], best[pos:])
		best[pos] = c
		if len(best) > k {
			best = best[:k]
		}
	}
	tau := func() float64 {
		if len(best) < k {
			return math.Inf(1)
		}
		return best[len(best)-1].theta
	}

	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}
		cos := vector.CosineSimilarity(q, t.vecs[n.idx])
		theta := angle(cos)
		push(candidate{n: domain.Neighbor{ID: t.ids[n.idx], Distance: 1 - cos}, theta: theta})
		if theta <= n.mu {
			if theta-tau() <= n.mu+slack {
				visit(n.left)
			}
			if theta+tau() >= n.mu-slack {
				visit(n.right)
			}
			return
		}
		if theta+tau() >= n.mu-slack {
			visit(n.right)
		}
		if theta-tau() <= n.mu+slack {
			visit(n.left)
		}
	}
	visit(t.root)

	for _, i := range t.zero {
		push(candidate{n: domain.Neighbor{ID: t.ids[i], Distance: 1}, theta: math.Pi / 2})
	}

	out := make([]domain.Neighbor, len(best))
	for i, c := range best {
		out[i] = c.n
	}
	return out
}

// MarshalBinary encodes the indexed vectors. The tree shape is rebuilt
// deterministically on load.
//
// Layout: magic[4] dim:u32 n:u32 then n × (id:i64 vec:f32[dim]), little-endian.
func (t *Tree) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 12, 12+len(t.ids)*(8+4*t.dim))
	copy(buf, blobMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(t.dim))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(t.ids)))
	for i, id := range t.ids {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
		buf = append(buf, vector.EncodeEmbedding(t.vecs[i])...)
	}
	return buf, nil
}

// Unmarshal decodes a blob written by MarshalBinary and rebuilds the tree.
func Unmarshal(data []byte) (*Tree, error) {
	if len(data) < 12 || [4]byte(data[:4]) != blobMagic {
		return nil, errCorruptIndex
	}
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	n := int(binary.LittleEndian.Uint32(data[8:]))
	stride := 8 + 4*dim
	if dim <= 0 || len(data)-12 != n*stride {
		return nil, fmt.Errorf("%w: %d bytes for %d vectors of dim %d", errCorruptIndex, len(data), n, dim)
	}
	ids := make([]int64, n)
	vecs := make([][]float32, n)
	off := 12
	for i := 0; i < n; i++ {
		ids[i] = int64(binary.LittleEndian.Uint64(data[off:]))
		v, err := vector.DecodeEmbedding(data[off+8 : off+stride])
		if err != nil {
			return nil, err
		}
		vecs[i] = v
		off += stride
	}
	return Build(dim, ids, vecs)
}

package hashing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumrag/internal/vector"
)

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	ctx := context.Background()
	e := New(64)
	assert.Equal(t, 64, e.Dimension())

	a, err := e.Embed(ctx, "Tire pressure on the Skip Barber at Laguna Seca")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Tire pressure on the Skip Barber at Laguna Seca")
	require.NoError(t, err)
	require.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, vector.Norm(a), 1e-6)
}

func TestEmbedRanksRelatedTextHigher(t *testing.T) {
	ctx := context.Background()
	e := New(256)
	q, _ := e.Embed(ctx, "force feedback wheel settings")
	related, _ := e.Embed(ctx, "My wheel force feedback settings feel too strong")
	unrelated, _ := e.Embed(ctx, "Subscription renewal and billing questions")

	assert.Greater(t, vector.CosineSimilarity(q, related), vector.CosineSimilarity(q, unrelated))
}

func TestEmbedWithoutTokensIsZero(t *testing.T) {
	v, err := New(8).Embed(context.Background(), "the and of !!!")
	require.NoError(t, err)
	assert.Equal(t, 0.0, vector.Norm(v))
}

func TestDefaultDimension(t *testing.T) {
	assert.Equal(t, DefaultDimension, New(0).Dimension())
}

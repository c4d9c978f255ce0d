package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumrag/internal/domain"
	"forumrag/internal/embedding/hashing"
	"forumrag/internal/ingest"
	"forumrag/internal/llm/extractive"
	"forumrag/internal/metadata"
	"forumrag/internal/sqlitedb"
	"forumrag/internal/synth"
	"forumrag/internal/vectorstore"
)

type fixture struct {
	query *QueryService
	docs  *metadata.Store
	store *vectorstore.Store
}

func setupFixture(t *testing.T, records []domain.Record) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	docs, err := metadata.NewStore(ctx, db)
	require.NoError(t, err)
	emb := hashing.New(128)
	store, err := vectorstore.Open(ctx, db, vectorstore.Options{Dim: emb.Dimension(), Index: vectorstore.IndexVPTree})
	require.NoError(t, err)

	if len(records) > 0 {
		_, err = ingest.New(emb, docs, store, nil).Ingest(ctx, "test", records)
		require.NoError(t, err)
	}
	return fixture{query: NewQueryService(emb, store, docs, nil), docs: docs, store: store}
}

var racingPosts = []domain.Record{
	{AuthorName: "alice", CommentText: "Brake bias around 54 percent works well in the Mazda MX-5.", PostDate: "2024-01-05T10:00:00+00:00"},
	{AuthorName: "bob", CommentText: "My graphics card overheats when running VR at high resolution.", PostDate: "function(){var loc=1}"},
	{AuthorName: "carol", CommentText: "Lower tyre pressures give more grip on cold tracks.", PostDate: ""},
}

func TestCleanTimestamp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024-01-05T10:00:00+00:00", "2024-01-05 10:00"},
		{"2024-01-05T10:00:00Z", "2024-01-05 10:00"},
		{"2024-01-05T10:00:00.123+02:00", "2024-01-05 10:00"},
		{"2024-01-05T10:00+00:00", "2024-01-05 10:00"},
		{"2024-01-05T10:00Z", "2024-01-05 10:00"},
		{"function(){ var x }", DateNotAvailable},
		{"var loc = window.location", DateNotAvailable},
		{"<script>document.write(d)</script>", DateNotAvailable},
		{"", UnknownDate},
		{"January 5, 2024", "January 5, 2024"},
		{"Tuesday", "Tuesday"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanTimestamp(tt.in))
		})
	}
}

func TestSearchRanksAndCleans(t *testing.T) {
	f := setupFixture(t, racingPosts)

	results, err := f.query.Search(context.Background(), "brake bias Mazda", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alice", results[0].Document.Author)
	assert.Equal(t, "2024-01-05 10:00", results[0].Document.Timestamp)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	for _, r := range results {
		switch r.Document.Author {
		case "bob":
			assert.Equal(t, DateNotAvailable, r.Document.Timestamp)
		case "carol":
			assert.Equal(t, UnknownDate, r.Document.Timestamp)
		}
	}
}

func TestSearchEmptyStore(t *testing.T) {
	f := setupFixture(t, nil)
	results, err := f.query.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSkipsMissingMetadata(t *testing.T) {
	f := setupFixture(t, racingPosts[:1])
	ctx := context.Background()
	vec, err := hashing.New(128).Embed(ctx, "orphan embedding about brake bias")
	require.NoError(t, err)
	require.NoError(t, f.store.Insert(ctx, 999, vec))

	results, err := f.query.Search(ctx, "brake bias", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].Document.Author)
}

func TestPostLookup(t *testing.T) {
	f := setupFixture(t, racingPosts)
	doc, err := f.query.Post(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", doc.Author)
	assert.Equal(t, DateNotAvailable, doc.Timestamp)

	_, err = f.query.Post(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type countingSynth struct {
	asks    int
	streams int
	posts   string
	err     error
}

func (c *countingSynth) Ask(_ context.Context, _ string, posts string) (string, error) {
	c.asks++
	c.posts = posts
	return "answer", c.err
}

func (c *countingSynth) Stream(_ context.Context, _ string, posts string) *synth.Stream {
	c.streams++
	c.posts = posts
	return synth.StaticStream("streamed answer")
}

func TestAskWithoutResultsSkipsSynthesis(t *testing.T) {
	f := setupFixture(t, nil)
	s := &countingSynth{}
	rag := NewRAGService(f.query, s, RAGOptions{}, nil)

	ans, err := rag.Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantAnswer, ans.Text)
	assert.Zero(t, s.asks)

	stream, results, err := rag.AskStream(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Empty(t, results)
	text, err := synth.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, NoRelevantAnswer, text)
	assert.Zero(t, s.streams)
}

func TestAskAssemblesContext(t *testing.T) {
	f := setupFixture(t, racingPosts)
	s := &countingSynth{}
	rag := NewRAGService(f.query, s, RAGOptions{ContextPosts: 2, MaxCharsPerPost: 10}, nil)

	ans, err := rag.Ask(context.Background(), "brake bias")
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Len(t, ans.Sources, 2)
	assert.Contains(t, s.posts, "Post 1 (by alice, 2024-01-05 10:00):\nBrake bias...\n\n")
	assert.NotContains(t, s.posts, "Post 3")
}

func TestAskPropagatesSynthesisError(t *testing.T) {
	f := setupFixture(t, racingPosts)
	upstream := &synth.SynthesisError{Provider: "fake", Err: errors.New("timeout")}
	rag := NewRAGService(f.query, &countingSynth{err: upstream}, RAGOptions{}, nil)

	_, err := rag.Ask(context.Background(), "brake bias")
	var synthErr *synth.SynthesisError
	assert.ErrorAs(t, err, &synthErr)
}

func TestAskStreamEndToEnd(t *testing.T) {
	f := setupFixture(t, racingPosts)
	rag := NewRAGService(f.query, synth.New(extractive.New(1), nil, nil), RAGOptions{ContextPosts: 1}, nil)

	stream, results, err := rag.AskStream(context.Background(), "tyre pressures grip")
	require.NoError(t, err)
	require.Len(t, results, 1)
	text, err := synth.Collect(stream)
	require.NoError(t, err)
	assert.Contains(t, text, "Lower tyre pressures give more grip on cold tracks. (carol, Unknown date)")
}

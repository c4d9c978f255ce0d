package domain

import "context"

// Document is a single forum post as stored by the metadata store.
type Document struct {
	ID         int64  `db:"id" json:"id"`
	Source     string `db:"source" json:"source"`
	Author     string `db:"author" json:"author"`
	Timestamp  string `db:"post_date" json:"date"`
	Text       string `db:"text" json:"text"`
	ExternalID string `db:"comment_id" json:"comment_id"`
}

// SearchResult is a document paired with its similarity to a query.
// Similarity is 1 - distance as reported by the active vector backend.
type SearchResult struct {
	Document   Document
	Similarity float64
}

// Neighbor is a raw nearest-neighbour hit returned by an embedding index.
type Neighbor struct {
	ID       int64
	Distance float64
}

// Record is a raw post as produced by the forum scraper.
type Record struct {
	AuthorName  string `json:"author_name"`
	CommentText string `json:"comment_text"`
	CommentID   string `json:"comment_id"`
	PostDate    string `json:"post_date"`
}

// Embedder converts free text into a fixed-size vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingIndex stores one vector per document id and answers kNN queries.
type EmbeddingIndex interface {
	Insert(ctx context.Context, id int64, vec []float32) error
	Query(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// DocumentStore persists post metadata and assigns document ids.
type DocumentStore interface {
	Put(ctx context.Context, doc Document) (int64, error)
	Get(ctx context.Context, id int64) (Document, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Document, error)
}

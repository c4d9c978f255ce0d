package vectorstore

import (
	"context"

	"forumrag/internal/domain"
)

// Backend is one embedding storage strategy. The Store picks exactly one at
// open time.
type Backend interface {
	Kind() string
	Insert(ctx context.Context, id int64, vec []float32) error
	Query(ctx context.Context, vec []float32, k int) ([]domain.Neighbor, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

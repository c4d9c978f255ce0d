// Package qdrant implements the remote embedding backend on a Qdrant
// collection. Every vector is also written to the local row store so the
// linear backend can serve the same data when Qdrant is unreachable.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"forumrag/internal/domain"
	"forumrag/internal/vector"
	"forumrag/internal/vectorstore/linear"
)

// Kind identifies this backend.
const Kind = "qdrant"

const backfillBatch = 256

// Config contains connection details for a Qdrant collection.
type Config struct {
	Host       string
	Port       int
	Collection string
	Timeout    time.Duration

	dialOptions []grpc.DialOption
}

// Backend queries a Qdrant collection using cosine distance.
type Backend struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
	timeout     time.Duration
	rows        *linear.Backend
	logger      *slog.Logger
}

// Open connects to Qdrant and makes sure the collection exists with the
// store dimension. A fresh collection, or one whose exact point count differs
// from the row store, is backfilled from the row store.
// Any failure is reported as domain.ErrBackendUnavailable.
func Open(ctx context.Context, cfg Config, rows *linear.Backend, dim int, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "forum_posts"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, cfg.dialOptions...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant connect: %v", domain.ErrBackendUnavailable, err)
	}
	b := &Backend{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		dim:         dim,
		timeout:     cfg.Timeout,
		rows:        rows,
		logger:      logger,
	}
	if err := b.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return b, nil
}

func (b *Backend) ensureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	exists, err := b.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: b.collection})
	if err != nil {
		return fmt.Errorf("qdrant probe: %w", err)
	}
	if exists.GetResult().GetExists() {
		info, err := b.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: b.collection})
		if err != nil {
			return fmt.Errorf("qdrant collection info: %w", err)
		}
		size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if int(size) != b.dim {
			return fmt.Errorf("qdrant collection %q has dimension %d, store uses %d", b.collection, size, b.dim)
		}
		return b.reconcile(ctx)
	}

	_, err = b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(b.dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return b.backfill(ctx)
}

// reconcile backfills an existing collection that missed writes made while
// Qdrant was unreachable. Upserts are idempotent, so a full pass is safe.
func (b *Backend) reconcile(ctx context.Context) error {
	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: b.collection, Exact: &exact})
	if err != nil {
		return fmt.Errorf("qdrant count: %w", err)
	}
	want, err := b.rows.Count(ctx)
	if err != nil {
		return err
	}
	have := resp.GetResult().GetCount()
	if have == uint64(want) {
		return nil
	}
	b.logger.Warn("qdrant collection out of sync with row store",
		"collection", b.collection, "points", have, "rows", want)
	return b.backfill(ctx)
}

func (b *Backend) backfill(ctx context.Context) error {
	var batch []*pb.PointStruct
	total := 0
	var upsertErr error
	flush := func() {
		if len(batch) == 0 || upsertErr != nil {
			return
		}
		upsertErr = b.upsert(ctx, batch)
		total += len(batch)
		batch = batch[:0]
	}
	err := b.rows.Scan(ctx, func(id int64, vec []float32) {
		batch = append(batch, point(id, vec))
		if len(batch) == backfillBatch {
			flush()
		}
	})
	if err != nil {
		return err
	}
	flush()
	if upsertErr != nil {
		return fmt.Errorf("qdrant backfill: %w", upsertErr)
	}
	if total > 0 {
		b.logger.Info("backfilled qdrant collection", "collection", b.collection, "vectors", total)
	}
	return nil
}

func point(id int64, vec []float32) *pb.PointStruct {
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}},
	}
}

func (b *Backend) upsert(ctx context.Context, points []*pb.PointStruct) error {
	wait := true
	_, err := b.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

// Kind returns "qdrant".
func (b *Backend) Kind() string { return Kind }

// Insert writes vec to the row store, then to the collection.
func (b *Backend) Insert(ctx context.Context, id int64, vec []float32) error {
	if err := b.rows.Insert(ctx, id, vec); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.upsert(ctx, []*pb.PointStruct{point(id, vec)}); err != nil {
		return fmt.Errorf("qdrant upsert %d: %w", id, err)
	}
	return nil
}

// Query returns the k nearest points. Qdrant scores are cosine
// similarities, so distance is 1 - score.
func (b *Backend) Query(ctx context.Context, vec []float32, k int) ([]domain.Neighbor, error) {
	if err := domain.CheckDimension(vec, b.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: b.collection,
		Vector:         vec,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	out := make([]domain.Neighbor, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		out = append(out, domain.Neighbor{
			ID:       int64(pt.GetId().GetNum()),
			Distance: 1 - float64(pt.GetScore()),
		})
	}
	return vector.TopK(out, k), nil
}

// Count returns the number of vectors in the row store.
func (b *Backend) Count(ctx context.Context) (int, error) { return b.rows.Count(ctx) }

// Close closes the gRPC connection.
func (b *Backend) Close() error { return b.conn.Close() }

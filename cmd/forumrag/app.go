package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"forumrag/internal/config"
	"forumrag/internal/embedding"
	"forumrag/internal/ingest"
	"forumrag/internal/llm"
	"forumrag/internal/llm/extractive"
	"forumrag/internal/llm/openai"
	"forumrag/internal/metadata"
	"forumrag/internal/service"
	"forumrag/internal/sqlitedb"
	"forumrag/internal/synth"
	"forumrag/internal/vectorstore"
	"forumrag/internal/vectorstore/qdrant"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	db       *sqlx.DB
	docs     *metadata.Store
	store    *vectorstore.Store
	query    *service.QueryService
	rag      *service.RAGService
	ingestor *ingest.Ingestor
}

func openApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	db, err := sqlitedb.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	docs, err := metadata.NewStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store, err := vectorstore.Open(ctx, db, vectorstore.Options{
		Dim:    emb.Dimension(),
		Index:  cfg.VectorStore.Index,
		Qdrant: qdrantConfig(cfg.VectorStore.Qdrant),
		Logger: logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// A missing completer only disables ask; ingest and search still work.
	var rag *service.RAGService
	query := service.NewQueryService(emb, store, docs, logger)
	completer, cerr := newCompleter(cfg.LLM)
	if cerr != nil {
		logger.Warn("answer synthesis unavailable", "provider", cfg.LLM.Provider, "error", cerr)
	} else {
		rag = service.NewRAGService(query, synth.New(completer, requestOptions(cfg.LLM), logger), service.RAGOptions{
			ContextPosts:    cfg.Retrieval.ContextPosts,
			MaxCharsPerPost: cfg.Retrieval.MaxCharsPerPost,
		}, logger)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		docs:     docs,
		store:    store,
		query:    query,
		rag:      rag,
		ingestor: ingest.New(emb, docs, store, logger),
	}, nil
}

func (a *app) ragService() (*service.RAGService, error) {
	if a.rag == nil {
		return nil, fmt.Errorf("llm provider %q is not usable; check the llm section of the config", a.cfg.LLM.Provider)
	}
	return a.rag, nil
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing embedding store", "error", err)
	}
	return a.db.Close()
}

func newCompleter(cfg config.LLMConfig) (llm.Completer, error) {
	switch cfg.Provider {
	case "extractive", "":
		return extractive.New(0), nil
	case "openai":
		client, err := openai.New(openai.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

func requestOptions(cfg config.LLMConfig) *llm.RequestOptions {
	opts := &llm.RequestOptions{Temperature: cfg.Temperature}
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		opts.MaxTokens = &mt
	}
	return opts
}

func qdrantConfig(c *config.QdrantConfig) qdrant.Config {
	if c == nil {
		return qdrant.Config{}
	}
	return qdrant.Config{
		Host:       c.Host,
		Port:       c.Port,
		Collection: c.Collection,
		Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
	}
}

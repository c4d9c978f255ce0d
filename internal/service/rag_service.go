package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"forumrag/internal/assembler"
	"forumrag/internal/domain"
	"forumrag/internal/synth"
)

// NoRelevantAnswer is returned without contacting the completion service
// when a search finds nothing.
const NoRelevantAnswer = "I couldn't find any relevant posts in the database to answer your question."

// Synthesizer produces answers from a question and assembled post context.
type Synthesizer interface {
	Ask(ctx context.Context, question, posts string) (string, error)
	Stream(ctx context.Context, question, posts string) *synth.Stream
}

// RAGOptions tunes how much retrieved content reaches the prompt.
type RAGOptions struct {
	ContextPosts    int
	MaxCharsPerPost int
}

// Answer is a synthesized reply together with the posts it was built from.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

// RAGService runs search, context assembly and synthesis for a question.
type RAGService struct {
	query  *QueryService
	synth  Synthesizer
	opts   RAGOptions
	logger *slog.Logger
}

// NewRAGService creates a RAG service over query and synthesizer.
func NewRAGService(query *QueryService, synthesizer Synthesizer, opts RAGOptions, logger *slog.Logger) *RAGService {
	if opts.ContextPosts <= 0 {
		opts.ContextPosts = DefaultSearchLimit
	}
	if opts.MaxCharsPerPost <= 0 {
		opts.MaxCharsPerPost = assembler.DefaultMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGService{query: query, synth: synthesizer, opts: opts, logger: logger}
}

// Ask answers question in one blocking call.
func (s *RAGService) Ask(ctx context.Context, question string) (ans Answer, err error) {
	ctx, span := startSpan(ctx, "rag.ask", attribute.Int("rag.context_posts", s.opts.ContextPosts))
	defer func() { endSpan(span, err) }()

	results, err := s.query.Search(ctx, question, s.opts.ContextPosts)
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		s.logger.Info("no posts matched question")
		return Answer{Text: NoRelevantAnswer}, nil
	}
	text, err := s.synth.Ask(ctx, question, assembler.Assemble(results, s.opts.MaxCharsPerPost))
	if err != nil {
		return Answer{Sources: results}, err
	}
	return Answer{Text: text, Sources: results}, nil
}

// AskStream searches synchronously and returns a lazy answer stream over the
// matched posts. The caller must drain or Close the stream.
func (s *RAGService) AskStream(ctx context.Context, question string) (_ *synth.Stream, _ []domain.SearchResult, err error) {
	spanCtx, span := startSpan(ctx, "rag.ask_stream", attribute.Int("rag.context_posts", s.opts.ContextPosts))
	defer func() { endSpan(span, err) }()

	results, err := s.query.Search(spanCtx, question, s.opts.ContextPosts)
	if err != nil {
		return nil, nil, err
	}
	if len(results) == 0 {
		s.logger.Info("no posts matched question")
		return synth.StaticStream(NoRelevantAnswer), results, nil
	}
	return s.synth.Stream(ctx, question, assembler.Assemble(results, s.opts.MaxCharsPerPost)), results, nil
}

// Package synth turns a question plus assembled post context into an answer
// from a completion service, either in one piece or as a fragment stream.
package synth

import (
	"context"
	"fmt"
	"log/slog"

	"forumrag/internal/llm"
)

// SynthesisError reports a failed upstream completion.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("error getting response from %s: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesizer issues exactly one upstream request per Ask or Stream. It does
// not retry and sets no timeout of its own.
type Synthesizer struct {
	completer llm.Completer
	opts      *llm.RequestOptions
	logger    *slog.Logger
}

// New creates a synthesizer over completer. opts may be nil.
func New(completer llm.Completer, opts *llm.RequestOptions, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{completer: completer, opts: opts, logger: logger}
}

func (s *Synthesizer) prompt(question, posts string) *llm.Prompt {
	return &llm.Prompt{
		SystemPrompt: SystemInstruction,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: UserPrompt(question, posts)}},
	}
}

// Ask blocks until the full answer is available.
func (s *Synthesizer) Ask(ctx context.Context, question, posts string) (string, error) {
	answer, err := s.completer.Complete(ctx, s.prompt(question, posts), s.opts)
	if err != nil {
		s.logger.Warn("completion failed", "provider", s.completer.Name(), "error", err)
		return "", &SynthesisError{Provider: s.completer.Name(), Err: err}
	}
	return answer, nil
}

// Stream returns a lazy fragment stream. The upstream request is issued on
// the first call to Next.
func (s *Synthesizer) Stream(ctx context.Context, question, posts string) *Stream {
	prompt := s.prompt(question, posts)
	name := s.completer.Name()
	return newStream(ctx, func(ctx context.Context) (llm.ChunkReader, error) {
		r, err := s.completer.Stream(ctx, prompt, s.opts)
		if err != nil {
			s.logger.Warn("completion stream failed", "provider", name, "error", err)
			return nil, &SynthesisError{Provider: name, Err: err}
		}
		return r, nil
	}, name)
}

package synth

import (
	"context"
	"errors"
	"io"
	"strings"

	"forumrag/internal/llm"
)

// FragmentKind tags a stream fragment.
type FragmentKind int

const (
	// FragmentText carries a piece of answer text.
	FragmentText FragmentKind = iota
	// FragmentEnd marks normal completion.
	FragmentEnd
	// FragmentError marks abnormal termination; Err is set.
	FragmentError
)

// Fragment is one element of an answer stream.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}

// Stream is a finite, non-restartable pull iterator over answer fragments.
// It yields zero or more text fragments followed by exactly one End or Error
// fragment. It is not safe for concurrent use.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	open     func(context.Context) (llm.ChunkReader, error)
	provider string
	reader   llm.ChunkReader
	done     bool
}

func newStream(ctx context.Context, open func(context.Context) (llm.ChunkReader, error), provider string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{ctx: ctx, cancel: cancel, open: open, provider: provider}
}

// StaticStream yields text as a single fragment followed by End. It performs
// no upstream call.
func StaticStream(text string) *Stream {
	return newStream(context.Background(), func(context.Context) (llm.ChunkReader, error) {
		return &staticReader{text: text}, nil
	}, "static")
}

// Next returns the next fragment. ok is false once the terminal fragment has
// been delivered or the stream was closed.
func (s *Stream) Next() (Fragment, bool) {
	if s.done {
		return Fragment{}, false
	}
	if s.reader == nil {
		r, err := s.open(s.ctx)
		if err != nil {
			return s.fail(err), true
		}
		s.reader = r
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return s.fail(&SynthesisError{Provider: s.provider, Err: err}), true
		}
		text, err := s.reader.Recv()
		switch {
		case errors.Is(err, io.EOF):
			s.finish()
			return Fragment{Kind: FragmentEnd}, true
		case err != nil:
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return s.fail(&SynthesisError{Provider: s.provider, Err: err}), true
		case text == "":
			continue
		default:
			return Fragment{Kind: FragmentText, Text: text}, true
		}
	}
}

func (s *Stream) fail(err error) Fragment {
	s.finish()
	return Fragment{Kind: FragmentError, Err: err}
}

func (s *Stream) finish() {
	s.done = true
	if s.reader != nil {
		_ = s.reader.Close()
	}
	s.cancel()
}

// Close abandons the stream and releases the upstream connection. Further
// calls to Next return false.
func (s *Stream) Close() error {
	if !s.done {
		s.finish()
	}
	return nil
}

// Collect drains s and returns the concatenated text. An Error fragment is
// returned as the error together with the text received so far.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		f, ok := s.Next()
		if !ok {
			return b.String(), nil
		}
		switch f.Kind {
		case FragmentText:
			b.WriteString(f.Text)
		case FragmentError:
			return b.String(), f.Err
		case FragmentEnd:
			return b.String(), nil
		}
	}
}

type staticReader struct {
	text string
	sent bool
}

func (r *staticReader) Recv() (string, error) {
	if r.sent {
		return "", io.EOF
	}
	r.sent = true
	return r.text, nil
}

func (r *staticReader) Close() error { return nil }

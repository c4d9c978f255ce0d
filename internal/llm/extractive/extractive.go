// Package extractive implements llm.Completer without a network service: the
// answer is assembled from the context sentences that best match the
// question. It reads the "Forum Posts Context:" and "User Question:" sections
// of the last user message.
package extractive

import (
	"context"
	"io"
	"regexp"
	"strings"

	"forumrag/internal/llm"
	"forumrag/internal/summarizer"
)

const (
	contextMarker  = "Forum Posts Context:"
	questionMarker = "User Question:"

	// NoInformation is returned when the prompt carries no usable context.
	NoInformation = "The forum posts don't contain enough information to answer that."
)

var postHeaderRe = regexp.MustCompile(`(?m)^Post \d+ \(by ([^,\n]*), ([^)\n]*)\):\s*$`)

// Completer ranks context sentences with a frequency summarizer.
type Completer struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
}

// New returns a completer citing at most maxSentences sentences per post.
func New(maxSentences int) *Completer {
	if maxSentences <= 0 {
		maxSentences = 2
	}
	return &Completer{summarizer: summarizer.NewFrequencySummarizer(), maxSentences: maxSentences}
}

func (c *Completer) Name() string { return "extractive" }

// Complete returns the extractive answer.
func (c *Completer) Complete(ctx context.Context, prompt *llm.Prompt, _ *llm.RequestOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.answer(prompt), nil
}

// Stream yields the extractive answer word by word.
func (c *Completer) Stream(ctx context.Context, prompt *llm.Prompt, _ *llm.RequestOptions) (llm.ChunkReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &wordReader{ctx: ctx, words: strings.SplitAfter(c.answer(prompt), " ")}, nil
}

func (c *Completer) answer(prompt *llm.Prompt) string {
	var user string
	for i := len(prompt.Messages) - 1; i >= 0; i-- {
		if prompt.Messages[i].Role == llm.RoleUser {
			user = prompt.Messages[i].Content
			break
		}
	}
	posts, question := split(user)
	if strings.TrimSpace(posts) == "" {
		return NoInformation
	}

	var b strings.Builder
	b.WriteString("From the forum posts:")
	for _, section := range sections(posts) {
		sentences := c.summarizer.Focus(section.text, question, c.maxSentences)
		if len(sentences) == 0 {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(strings.Join(sentences, " "))
		if section.author != "" {
			b.WriteString(" (")
			b.WriteString(section.author)
			if section.date != "" {
				b.WriteString(", ")
				b.WriteString(section.date)
			}
			b.WriteString(")")
		}
	}
	return b.String()
}

// split separates the context block from the question. The question follows
// the last marker, since post bodies may quote the marker text.
func split(user string) (posts, question string) {
	posts = user
	if i := strings.Index(user, contextMarker); i >= 0 {
		posts = user[i+len(contextMarker):]
	}
	if i := strings.LastIndex(posts, questionMarker); i >= 0 {
		question = posts[i+len(questionMarker):]
		posts = posts[:i]
		if nl := strings.Index(question, "\n"); nl >= 0 {
			question = question[:nl]
		}
	}
	return strings.TrimSpace(posts), strings.TrimSpace(question)
}

type section struct {
	author, date, text string
}

// sections splits a context block on its "Post N (by author, date):" headers.
// Text outside any header forms a single anonymous section.
func sections(posts string) []section {
	locs := postHeaderRe.FindAllStringSubmatchIndex(posts, -1)
	if len(locs) == 0 {
		return []section{{text: posts}}
	}
	out := make([]section, 0, len(locs))
	for i, loc := range locs {
		end := len(posts)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, section{
			author: posts[loc[2]:loc[3]],
			date:   posts[loc[4]:loc[5]],
			text:   strings.TrimSpace(posts[loc[1]:end]),
		})
	}
	return out
}

type wordReader struct {
	ctx   context.Context
	words []string
}

func (r *wordReader) Recv() (string, error) {
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	if len(r.words) == 0 {
		return "", io.EOF
	}
	w := r.words[0]
	r.words = r.words[1:]
	return w, nil
}

func (r *wordReader) Close() error {
	r.words = nil
	return nil
}

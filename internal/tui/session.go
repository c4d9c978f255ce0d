package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"forumrag/internal/domain"
	"forumrag/internal/synth"
)

// Searcher is the query side used by the REPL.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
	Post(ctx context.Context, id int64) (domain.Document, error)
}

// Asker opens streamed answers.
type Asker interface {
	AskStream(ctx context.Context, question string) (*synth.Stream, []domain.SearchResult, error)
}

// CommandKind identifies a parsed REPL line.
type CommandKind int

const (
	CmdEmpty CommandKind = iota
	CmdHelp
	CmdQuit
	CmdSearch
	CmdAsk
	CmdPost
)

// Command is a parsed REPL line.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand interprets one input line. Unrecognized input is a question.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdEmpty}
	}
	switch strings.ToLower(line) {
	case "quit", "exit", "q":
		return Command{Kind: CmdQuit}
	case "help":
		return Command{Kind: CmdHelp}
	case "search":
		return Command{Kind: CmdSearch}
	case "ask":
		return Command{Kind: CmdAsk}
	case "post":
		return Command{Kind: CmdPost}
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(verb) {
	case "search":
		return Command{Kind: CmdSearch, Arg: rest}
	case "ask":
		return Command{Kind: CmdAsk, Arg: rest}
	case "post":
		return Command{Kind: CmdPost, Arg: rest}
	}
	return Command{Kind: CmdAsk, Arg: line}
}

const helpText = `Commands:
  help - Show this help message
  search <query> - Search for similar posts
  ask <question> - Ask a question (uses AI)
  post <id> - Get a specific post by ID
  quit - Exit the program
Anything else is asked as a question.`

// Session renders search, post and help output for both REPL front ends.
type Session struct {
	searcher Searcher
	asker    Asker
	limit    int
	// highlight marks the sentence best matching the query; nil leaves text as is.
	highlight func(text, query string) string
}

// NewSession creates a session returning up to limit posts per search.
func NewSession(searcher Searcher, asker Asker, limit int) *Session {
	if limit <= 0 {
		limit = 5
	}
	return &Session{searcher: searcher, asker: asker, limit: limit}
}

// Help returns the command overview.
func (s *Session) Help() string { return helpText }

// Search runs a search and renders the hits.
func (s *Session) Search(ctx context.Context, query string) string {
	if query == "" {
		return "Please provide a search query."
	}
	results, err := s.searcher.Search(ctx, query, s.limit)
	if err != nil {
		return "Search failed: " + err.Error()
	}
	if len(results) == 0 {
		return fmt.Sprintf("Searching for: '%s'\nNo relevant posts found.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Searching for: '%s'\n\nFound %d relevant posts:\n", query, len(results))
	for i, r := range results {
		text := r.Document.Text
		if s.highlight != nil {
			text = s.highlight(text, query)
		}
		fmt.Fprintf(&b, "\n%d. %s (%s) - Score: %.3f [post %d]\n   %s\n",
			i+1, r.Document.Author, r.Document.Timestamp, r.Similarity, r.Document.ID, text)
	}
	return b.String()
}

// Post renders a single post.
func (s *Session) Post(ctx context.Context, arg string) string {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return "Please provide a valid post ID number."
	}
	doc, err := s.searcher.Post(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("Post %d not found.", id)
	}
	if err != nil {
		return "Lookup failed: " + err.Error()
	}
	return fmt.Sprintf("Post %d:\nAuthor: %s\nDate: %s\nSource: %s\nText: %s",
		id, doc.Author, doc.Timestamp, doc.Source, doc.Text)
}

// Ask opens an answer stream for question.
func (s *Session) Ask(ctx context.Context, question string) (*synth.Stream, []domain.SearchResult, error) {
	return s.asker.AskStream(ctx, question)
}

// errorLine formats a failed answer the way it is shown to the user.
func errorLine(err error) string {
	var synthErr *synth.SynthesisError
	if errors.As(err, &synthErr) {
		return "Error getting response: " + synthErr.Err.Error()
	}
	return "Error getting response: " + err.Error()
}

// Package ingest loads scraped forum posts into the metadata and embedding
// stores.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"forumrag/internal/domain"
)

// DefaultSource is recorded when Ingest is called without a source.
const DefaultSource = "forums.iracing.com"

// Stats counts what happened to each record of an ingest run.
type Stats struct {
	Seen    int
	Saved   int
	Skipped int
	Failed  int
}

// Ingestor embeds and stores records one at a time.
type Ingestor struct {
	embedder domain.Embedder
	docs     domain.DocumentStore
	index    domain.EmbeddingIndex
	logger   *slog.Logger
}

// New creates an ingestor.
func New(embedder domain.Embedder, docs domain.DocumentStore, index domain.EmbeddingIndex, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{embedder: embedder, docs: docs, index: index, logger: logger}
}

// Ingest stores every record with non-empty text. Records without text are
// skipped; a failing record is logged and counted without stopping the run.
// Only context cancellation aborts early.
func (in *Ingestor) Ingest(ctx context.Context, source string, records []domain.Record) (Stats, error) {
	if source == "" {
		source = DefaultSource
	}
	var st Stats
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Seen++
		if strings.TrimSpace(rec.CommentText) == "" {
			st.Skipped++
			continue
		}
		if err := in.ingestOne(ctx, source, rec); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			in.logger.Warn("failed to ingest post", "index", i, "comment_id", rec.CommentID, "error", err)
			st.Failed++
			continue
		}
		st.Saved++
	}
	in.logger.Info("ingest finished", "source", source,
		"seen", st.Seen, "saved", st.Saved, "skipped", st.Skipped, "failed", st.Failed)
	return st, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, source string, rec domain.Record) error {
	vec, err := in.embedder.Embed(ctx, rec.CommentText)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	id, err := in.docs.Put(ctx, domain.Document{
		Source:     source,
		Author:     rec.AuthorName,
		Timestamp:  rec.PostDate,
		Text:       rec.CommentText,
		ExternalID: rec.CommentID,
	})
	if err != nil {
		return err
	}
	if err := in.index.Insert(ctx, id, vec); err != nil {
		return fmt.Errorf("storing embedding for post %d: %w", id, err)
	}
	return nil
}

// ReadRecords decodes either a JSON array of records or one JSON object per
// line.
func ReadRecords(r io.Reader) ([]domain.Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if first == '[' {
		var records []domain.Record
		if err := json.NewDecoder(br).Decode(&records); err != nil {
			return nil, fmt.Errorf("decoding record array: %w", err)
		}
		return records, nil
	}

	var records []domain.Record
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("decoding record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadFile reads records from path.
func ReadFile(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF:
			// UTF-8 byte order mark.
			if _, err := br.Discard(2); err != nil {
				return 0, err
			}
			continue
		}
		return b, br.UnreadByte()
	}
}

package legal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"basegraph.app/counsel/common/typesense"
)

// CorpusEntry is one legal text as authored in a corpus file.
type CorpusEntry struct {
	ID           string `yaml:"id"`
	Citation     string `yaml:"citation"`
	Title        string `yaml:"title"`
	Body         string `yaml:"body"`
	Jurisdiction string `yaml:"jurisdiction"`
}

type corpusFile struct {
	Jurisdiction string        `yaml:"jurisdiction"` // default for entries that omit it
	Texts        []CorpusEntry `yaml:"texts"`
}

var nonSlug = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// LoadCorpus parses a YAML corpus file into indexable documents. Entries without an id get
// one derived from jurisdiction and citation, so re-importing the same file overwrites
// instead of duplicating.
func LoadCorpus(r io.Reader) ([]typesense.Document, error) {
	var file corpusFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse corpus: %w", err)
	}

	docs := make([]typesense.Document, 0, len(file.Texts))
	seen := make(map[string]int, len(file.Texts))
	for i, e := range file.Texts {
		e.Citation = strings.TrimSpace(e.Citation)
		e.Body = strings.TrimSpace(e.Body)
		if e.Citation == "" {
			return nil, fmt.Errorf("corpus entry %d: citation is required", i+1)
		}
		if e.Body == "" {
			return nil, fmt.Errorf("corpus entry %d (%s): body is required", i+1, e.Citation)
		}
		if e.Jurisdiction == "" {
			e.Jurisdiction = file.Jurisdiction
		}
		if e.ID == "" {
			e.ID = corpusID(e.Jurisdiction, e.Citation)
		}
		if prev, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("corpus entry %d: id %q already used by entry %d", i+1, e.ID, prev)
		}
		seen[e.ID] = i + 1

		docs = append(docs, typesense.Document{
			ID:           e.ID,
			Citation:     e.Citation,
			Title:        strings.TrimSpace(e.Title),
			Body:         e.Body,
			Jurisdiction: e.Jurisdiction,
		})
	}
	return docs, nil
}

// ImportCorpus writes docs through the indexer, creating the collection first.
// It stops at the first failed document and reports how many were written.
func ImportCorpus(ctx context.Context, idx typesense.Indexer, docs []typesense.Document) (int, error) {
	if err := idx.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := idx.Upsert(ctx, d); err != nil {
			return i, err
		}
		slog.DebugContext(ctx, "legal text indexed", "id", d.ID, "citation", d.Citation)
	}
	return len(docs), nil
}

func corpusID(jurisdiction, citation string) string {
	parts := []string{jurisdiction, citation}
	if jurisdiction == "" {
		parts = parts[1:]
	}
	slug := nonSlug.ReplaceAllString(strings.ToLower(strings.Join(parts, " ")), "-")
	return strings.Trim(slug, "-")
}

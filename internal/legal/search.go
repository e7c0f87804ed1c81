package legal

import (
	"context"
	"fmt"
	"strings"

	"basegraph.app/counsel/common/typesense"
	"basegraph.app/counsel/internal/model"
)

// Searcher looks up legal texts for the legal_search tool.
type Searcher interface {
	Search(ctx context.Context, query, jurisdiction string) ([]model.LegalSource, error)
}

const maxExcerptRunes = 600

type typesenseSearcher struct {
	client typesense.Client
	limit  int
}

func NewTypesenseSearcher(client typesense.Client, limit int) Searcher {
	if limit <= 0 {
		limit = 5
	}
	return &typesenseSearcher{client: client, limit: limit}
}

func (s *typesenseSearcher) Search(ctx context.Context, query, jurisdiction string) ([]model.LegalSource, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	docs, err := s.client.Search(ctx, typesense.SearchParams{
		Query:        query,
		Jurisdiction: jurisdiction,
		Limit:        s.limit,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]model.LegalSource, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Citation) == "" {
			continue
		}
		sources = append(sources, model.LegalSource{
			Citation:     d.Citation,
			Title:        d.Title,
			Excerpt:      excerpt(d.Body),
			Jurisdiction: d.Jurisdiction,
		})
	}
	return sources, nil
}

// noopSearcher is used when no legal corpus is configured. It finds nothing, so drafts
// fall back to the no-sources disclaimer instead of inventing citations.
type noopSearcher struct{}

func NewNoopSearcher() Searcher { return noopSearcher{} }

func (noopSearcher) Search(context.Context, string, string) ([]model.LegalSource, error) {
	return nil, nil
}

// FormatContext renders sources as the research context handed to drafting.
// Duplicate citations are listed once.
func FormatContext(sources []model.LegalSource) string {
	if len(sources) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(sources))
	var sb strings.Builder
	for _, src := range sources {
		key := strings.ToLower(strings.TrimSpace(src.Citation))
		if seen[key] {
			continue
		}
		seen[key] = true

		fmt.Fprintf(&sb, "[%s]", src.Citation)
		if src.Title != "" {
			fmt.Fprintf(&sb, " %s", src.Title)
		}
		if src.Excerpt != "" {
			fmt.Fprintf(&sb, ": %s", src.Excerpt)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func excerpt(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	runes := []rune(body)
	if len(runes) <= maxExcerptRunes {
		return body
	}
	return string(runes[:maxExcerptRunes]) + "..."
}

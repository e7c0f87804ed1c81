package typesense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	ts "github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Document is one indexed legal text: a statute article, regulation clause or precedent.
type Document struct {
	ID           string
	Citation     string
	Title        string
	Body         string
	Jurisdiction string
}

type SearchParams struct {
	Query        string
	Jurisdiction string // optional exact filter
	Limit        int
}

type Client interface {
	Search(ctx context.Context, params SearchParams) ([]Document, error)
	Healthy(ctx context.Context) bool
}

// Indexer writes legal texts into the collection that Client searches.
type Indexer interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, doc Document) error
}

type client struct {
	ts         *ts.Client
	collection string
	timeout    time.Duration
}

const queryBy = "citation,title,body"

func New(cfg Config) (Client, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func NewIndexer(cfg Config) (Indexer, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg Config) (*client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("typesense URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("typesense API key is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "legal_texts"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &client{
		ts: ts.NewClient(
			ts.WithServer(cfg.URL),
			ts.WithAPIKey(cfg.APIKey),
			ts.WithConnectionTimeout(cfg.Timeout),
		),
		collection: cfg.Collection,
		timeout:    cfg.Timeout,
	}, nil
}

func (c *client) Search(ctx context.Context, params SearchParams) ([]Document, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 5
	}

	search := &api.SearchCollectionParams{
		Q:       pointer.String(params.Query),
		QueryBy: pointer.String(queryBy),
		PerPage: pointer.Int(limit),
	}
	if params.Jurisdiction != "" {
		search.FilterBy = pointer.String(fmt.Sprintf("jurisdiction:=%s", escapeFilter(params.Jurisdiction)))
	}

	res, err := c.ts.Collection(c.collection).Documents().Search(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("typesense search %s: %w", c.collection, err)
	}
	if res.Hits == nil {
		return nil, nil
	}

	docs := make([]Document, 0, len(*res.Hits))
	for _, hit := range *res.Hits {
		if hit.Document == nil {
			continue
		}
		docs = append(docs, documentFromMap(*hit.Document))
	}
	return docs, nil
}

func (c *client) Healthy(ctx context.Context) bool {
	ok, err := c.ts.Health(ctx, c.timeout)
	return err == nil && ok
}

// EnsureCollection creates the collection with the legal text schema unless it exists.
func (c *client) EnsureCollection(ctx context.Context) error {
	_, err := c.ts.Collection(c.collection).Retrieve(ctx)
	if err == nil {
		return nil
	}
	var httpErr *ts.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotFound {
		return fmt.Errorf("typesense retrieve %s: %w", c.collection, err)
	}

	if _, err := c.ts.Collections().Create(ctx, collectionSchema(c.collection)); err != nil {
		return fmt.Errorf("typesense create %s: %w", c.collection, err)
	}
	return nil
}

func (c *client) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("typesense upsert: document id is required")
	}
	if _, err := c.ts.Collection(c.collection).Documents().Upsert(ctx, documentToMap(doc), &api.DocumentIndexParameters{}); err != nil {
		return fmt.Errorf("typesense upsert %s/%s: %w", c.collection, doc.ID, err)
	}
	return nil
}

func collectionSchema(name string) *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: name,
		Fields: []api.Field{
			{Name: "citation", Type: "string"},
			{Name: "title", Type: "string"},
			{Name: "body", Type: "string"},
			{Name: "jurisdiction", Type: "string", Facet: pointer.True()},
		},
	}
}

func documentToMap(d Document) map[string]interface{} {
	return map[string]interface{}{
		"id":           d.ID,
		"citation":     d.Citation,
		"title":        d.Title,
		"body":         d.Body,
		"jurisdiction": d.Jurisdiction,
	}
}

func documentFromMap(m map[string]interface{}) Document {
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	return Document{
		ID:           str("id"),
		Citation:     str("citation"),
		Title:        str("title"),
		Body:         str("body"),
		Jurisdiction: str("jurisdiction"),
	}
}

// escapeFilter wraps values with spaces or commas in backticks, as filter_by requires.
func escapeFilter(v string) string {
	v = strings.ReplaceAll(v, "`", "")
	if strings.ContainsAny(v, " ,()[]&|") {
		return "`" + v + "`"
	}
	return v
}

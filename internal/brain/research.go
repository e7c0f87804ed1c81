package brain

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/internal/legal"
	"basegraph.app/counsel/internal/model"
)

const researchParallelism = 2

// ResearchAgent runs the decision's legal_search calls. Searches run in parallel; a failed
// search is logged and skipped so one bad backend call does not sink the turn.
type ResearchAgent struct {
	searcher legal.Searcher
}

func NewResearchAgent(searcher legal.Searcher) *ResearchAgent {
	return &ResearchAgent{searcher: searcher}
}

// Run returns the sources found, in tool-call order. Only cancellation is an error.
func (a *ResearchAgent) Run(ctx context.Context, decision model.RouterDecision) ([]model.LegalSource, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "counsel.brain.research"})
	sc := logger.StartSpan(ctx, "brain.research.run")
	defer sc.End()
	ctx = sc.Context()

	calls := decision.ToolCallsNamed(model.ToolLegalSearch)
	if len(calls) == 0 {
		slog.DebugContext(ctx, "no legal_search calls to run")
		return nil, nil
	}

	start := time.Now()
	results := make([][]model.LegalSource, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(researchParallelism)
	for i, call := range calls {
		g.Go(func() error {
			query := call.Arguments["query"]
			sources, err := a.searcher.Search(gctx, query, call.Arguments["jurisdiction"])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Graceful degradation: log and continue with other searches
				slog.ErrorContext(gctx, "legal search failed",
					"tool_call_id", call.ID,
					"query", logger.Truncate(query, 100),
					"error", err)
				return nil
			}
			results[i] = sources
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sc.RecordError(err)
		return nil, err
	}

	var sources []model.LegalSource
	for _, r := range results {
		sources = append(sources, r...)
	}

	slog.InfoContext(ctx, "research complete",
		"searches", len(calls),
		"sources", len(sources),
		"duration_ms", time.Since(start).Milliseconds())

	return sources, nil
}

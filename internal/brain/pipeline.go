package brain

import (
	"context"

	"basegraph.app/counsel/internal/model"
)

// DraftReviewPipeline drafts and then reviews. A draft only leaves through the reviewer.
type DraftReviewPipeline struct {
	drafter  *Drafter
	reviewer *Reviewer
}

func NewDraftReviewPipeline(drafter *Drafter, reviewer *Reviewer) *DraftReviewPipeline {
	return &DraftReviewPipeline{drafter: drafter, reviewer: reviewer}
}

func (p *DraftReviewPipeline) Run(ctx context.Context, in DraftInput) (*model.ReviewedArtifact, error) {
	draft, err := p.drafter.Draft(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.reviewer.Review(ctx, draft)
}

package brain

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/internal/model"
)

const reviewMaxAttempts = 2

type reviewOutput struct {
	RevisedText              string `json:"revised_text" jsonschema_description:"The full draft after corrections; identical to the input when nothing needed fixing"`
	OutcomeGuaranteeFound    bool   `json:"outcome_guarantee_found"`
	UnsupportedCitationFound bool   `json:"unsupported_citation_found"`
	Notes                    string `json:"notes"`
}

// Reviewer is the mandatory compliance pass. The review model revises the draft, then the
// deterministic guardrails run on its output and the disclaimer goes on last.
type Reviewer struct {
	llm        llm.Client
	disclaimer string
}

func NewReviewer(client llm.Client, disclaimer string) *Reviewer {
	if strings.TrimSpace(disclaimer) == "" {
		disclaimer = DefaultDisclaimer
	}
	return &Reviewer{llm: client, disclaimer: strings.TrimSpace(disclaimer)}
}

func (r *Reviewer) Disclaimer() string {
	return r.disclaimer
}

func (r *Reviewer) Review(ctx context.Context, draft *model.DraftArtifact) (*model.ReviewedArtifact, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "counsel.brain.reviewer"})
	sc := logger.StartSpan(ctx, "brain.reviewer.review")
	defer sc.End()
	ctx = sc.Context()

	req := llm.Request{
		SystemPrompt: reviewSystemPrompt,
		UserPrompt:   buildReviewPrompt(draft),
		SchemaName:   "review_result",
		Schema:       llm.GenerateSchema[reviewOutput](),
		Temperature:  llm.Temp(0),
	}

	var out reviewOutput
	var err error
	for attempt := 1; attempt <= reviewMaxAttempts; attempt++ {
		out = reviewOutput{}
		_, err = r.llm.Chat(ctx, req, &out)
		if err == nil && strings.TrimSpace(out.RevisedText) == "" {
			err = errors.Join(llm.ErrUnparsable, errors.New("empty revised_text"))
		}
		if err == nil || !errors.Is(err, llm.ErrUnparsable) || ctx.Err() != nil {
			break
		}
		slog.WarnContext(ctx, "review output unparsable, retrying", "attempt", attempt, "error", err)
	}
	if err != nil {
		reviewErr := &ReviewUnavailableError{Err: err}
		sc.RecordError(reviewErr)
		return nil, reviewErr
	}

	guarded := ApplyGuardrails(out.RevisedText, GuardrailInput{
		ResearchContext: draft.Sources,
		Topic:           draft.Topic,
		Intent:          draft.Intent,
	})
	final, appended := EnsureDisclaimer(guarded.Text, r.disclaimer)

	reviewed := &model.ReviewedArtifact{
		FinalText:            final,
		DisclaimerAppended:   appended,
		HallucinationFlagged: out.UnsupportedCitationFound || guarded.HallucinationFlagged,
		OutcomeRewritten:     out.OutcomeGuaranteeFound || guarded.OutcomeRewritten,
	}

	slog.InfoContext(ctx, "review complete",
		"outcome_rewritten", reviewed.OutcomeRewritten,
		"hallucination_flagged", reviewed.HallucinationFlagged,
		"disclaimer_appended", reviewed.DisclaimerAppended,
		"model_notes", logger.Truncate(out.Notes, 200))

	return reviewed, nil
}

func buildReviewPrompt(draft *model.DraftArtifact) string {
	var sb strings.Builder
	sb.WriteString("## Research context\n")
	if strings.TrimSpace(draft.Sources) == "" {
		sb.WriteString("(none)\n\n")
	} else {
		sb.WriteString(draft.Sources)
		sb.WriteString("\n\n")
	}
	// The rest of the grounding is the case file: facts to check against, not citations.
	if rest := strings.TrimSpace(strings.TrimPrefix(draft.ResearchContext, draft.Sources)); rest != "" {
		sb.WriteString(rest)
		sb.WriteString("\n\n")
	}
	if draft.Topic != "" {
		sb.WriteString("## Topic\n")
		sb.WriteString(draft.Topic)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Draft\n")
	sb.WriteString(draft.Text)
	return sb.String()
}

const reviewSystemPrompt = `You are the compliance reviewer for a legal assistant. Return the corrected draft in revised_text.

Apply these checks in order:
1. Outcome guarantees: rewrite any statement that promises or predicts a case outcome into hedged language, e.g. "Based on the provided context, ... it is recommended to consult a licensed attorney."
2. Citations: every law, article or precedent cited must appear in the research context. Replace any citation or vague legal claim you cannot trace there with "No specific legal text was found regarding <topic>."
3. Do not add a disclaimer; it is appended automatically.

Keep the draft's language, structure and wording otherwise unchanged. Set the flags to report which checks required changes.`

package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/internal/model"
)

// NoSourcesNotice is added to drafts written with neither retrieved sources nor a case
// file, in place of citations the drafter could not ground.
const NoSourcesNotice = "Note: No legal sources were retrieved for this request, so this response does not cite specific legal texts."

type DraftInput struct {
	Text            string
	Intent          model.Intent
	ResearchContext string // retrieved legal sources; the only thing a draft may cite
	CaseFile        string // rendered case state, used for facts and parties
	Topic           string
}

// Drafter writes the document body for a request.
type Drafter struct {
	llm llm.Client
}

func NewDrafter(client llm.Client) *Drafter {
	return &Drafter{llm: client}
}

func (d *Drafter) Draft(ctx context.Context, in DraftInput) (*model.DraftArtifact, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "counsel.brain.drafter"})
	sc := logger.StartSpan(ctx, "brain.drafter.draft")
	defer sc.End()
	ctx = sc.Context()

	research := strings.TrimSpace(in.ResearchContext)
	grounding := groundingContext(research, strings.TrimSpace(in.CaseFile))

	var text string
	resp, err := d.llm.Chat(ctx, llm.Request{
		SystemPrompt: draftSystemPrompt,
		UserPrompt:   buildDraftPrompt(in, research),
		Temperature:  llm.Temp(0.2),
	}, &text)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrDraftUnavailable, err)
	}
	if resp == nil {
		resp = &llm.Response{}
	}

	text, stripped := SanitizeDraft(text)
	if stripped > 0 {
		slog.DebugContext(ctx, "stripped conversational framing from draft", "lines", stripped)
	}

	if grounding == "" && !strings.Contains(text, NoSourcesNotice) {
		text = strings.TrimRight(text, "\n ") + "\n\n" + NoSourcesNotice
	}

	slog.InfoContext(ctx, "draft produced",
		"intent", in.Intent,
		"sourced", research != "",
		"grounded", grounding != "",
		"draft_chars", len(text),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)

	return &model.DraftArtifact{
		Text:            text,
		Intent:          in.Intent,
		ResearchContext: grounding,
		Sources:         research,
		Topic:           in.Topic,
	}, nil
}

func groundingContext(research, caseFile string) string {
	switch {
	case caseFile == "":
		return research
	case research == "":
		return caseFile
	default:
		return research + "\n\n" + caseFile
	}
}

func buildDraftPrompt(in DraftInput, research string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Task type\n%s\n\n", in.Intent)

	sb.WriteString("## Research context\n")
	if research == "" {
		sb.WriteString("(none: do not cite any law, article or precedent)\n\n")
	} else {
		sb.WriteString(research)
		sb.WriteString("\n\n")
	}

	if caseFile := strings.TrimSpace(in.CaseFile); caseFile != "" {
		sb.WriteString(caseFile)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Request\n")
	sb.WriteString(in.Text)
	return sb.String()
}

const draftSystemPrompt = `You draft legal documents and research answers. Reply in the language of the request.

Output the document body only: no greeting, no preamble, no offer of further help.
Cite only laws, articles and precedents that appear in the research context, using the citation exactly as written there.
If the research context is empty, do not cite any legal provision.
Never promise or predict the outcome of a case.
Use the case file for names, roles, dates and facts. Do not invent any of them.`

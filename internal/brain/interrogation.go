package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/internal/model"
	"basegraph.app/counsel/internal/notify"
	"basegraph.app/counsel/internal/store"
)

const extractionMaxAttempts = 2

type ExtractedFact struct {
	Content string `json:"content"`
	Source  string `json:"source" jsonschema_description:"Where the fact came from, e.g. user statement or uploaded document"`
	Status  string `json:"status" jsonschema:"enum=confirmed,enum=disputed,enum=assumed"`
}

type ExtractedParty struct {
	Name        string `json:"name"`
	Role        string `json:"role" jsonschema:"enum=plaintiff,enum=defendant,enum=witness,enum=other"`
	Description string `json:"description"`
}

type ExtractedEvidence struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Relevance   string `json:"relevance"`
}

// DeconstructionResult is the first phase's output. Every field may be empty: partial
// extraction is normal, but present values must be well formed.
type DeconstructionResult struct {
	Topic          string              `json:"topic" jsonschema_description:"Short label for the legal matter, e.g. Commercial Contract"`
	Summary        string              `json:"summary"`
	Jurisdiction   string              `json:"jurisdiction"`
	Classification string              `json:"classification" jsonschema_description:"Area of law, e.g. labor, commercial, family"`
	Facts          []ExtractedFact     `json:"facts"`
	Dates          []string            `json:"dates" jsonschema_description:"Material dates mentioned, verbatim"`
	Parties        []ExtractedParty    `json:"parties"`
	Evidence       []ExtractedEvidence `json:"evidence"`
}

func (r *DeconstructionResult) Validate() error {
	for i, f := range r.Facts {
		if strings.TrimSpace(f.Content) == "" {
			return fmt.Errorf("facts[%d]: empty content", i)
		}
		if _, err := model.ParseFactStatus(f.Status); err != nil {
			return fmt.Errorf("facts[%d]: %w", i, err)
		}
	}
	for i, p := range r.Parties {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("parties[%d]: empty name", i)
		}
		if _, err := model.ParsePartyRole(p.Role); err != nil {
			return fmt.Errorf("parties[%d]: %w", i, err)
		}
	}
	for i, e := range r.Evidence {
		if strings.TrimSpace(e.Description) == "" {
			return fmt.Errorf("evidence[%d]: empty description", i)
		}
	}
	return nil
}

// GapAnalysisResult is the second phase's output. MissingCritical must be present,
// even when empty, so an omitted field is told apart from "nothing missing".
type GapAnalysisResult struct {
	MissingCritical *[]string `json:"missing_critical" jsonschema_description:"Information without which the request cannot be handled; empty when nothing critical is missing"`
}

func (r *GapAnalysisResult) Validate() error {
	if r.MissingCritical == nil {
		return errors.New("missing_critical field is absent")
	}
	return nil
}

// Gaps returns the trimmed, non-empty gap descriptions in order.
func (r *GapAnalysisResult) Gaps() []string {
	if r.MissingCritical == nil {
		return nil
	}
	gaps := make([]string, 0, len(*r.MissingCritical))
	for _, g := range *r.MissingCritical {
		if g = strings.TrimSpace(g); g != "" {
			gaps = append(gaps, g)
		}
	}
	return gaps
}

type validator interface {
	Validate() error
}

type InterrogationInput struct {
	SessionID  string
	Query      string
	State      *model.CaseState // current state; never modified
	CycleIndex int
}

type InterrogationResult struct {
	Status      model.InterrogationStatus
	State       *model.CaseState // merged copy of the input state
	Question    string           // set when Status is WAITING_FOR_INPUT
	Round       model.InterrogationRound
	Transitions int // assumed facts upgraded to confirmed or disputed
}

// InterrogationEngine runs one deconstruction + gap-analysis cycle and decides whether
// the case file is complete enough to draft from. It holds no per-session state: the
// caller passes the current CaseState in and commits the returned copy.
type InterrogationEngine struct {
	llm     llm.Client
	effects *sideEffects
}

// NewInterrogationEngine writes worksheets to files and status updates to notifier, both
// in the background with writeTimeout each. Either may be nil.
func NewInterrogationEngine(client llm.Client, files store.CaseFileStore, notifier notify.Notifier, writeTimeout time.Duration) *InterrogationEngine {
	return newInterrogationEngine(client, newSideEffects(files, notifier, writeTimeout))
}

func newInterrogationEngine(client llm.Client, effects *sideEffects) *InterrogationEngine {
	return &InterrogationEngine{llm: client, effects: effects}
}

// Wait blocks until background worksheet writes and status updates finish.
func (e *InterrogationEngine) Wait() {
	e.effects.wait()
}

func (e *InterrogationEngine) Execute(ctx context.Context, in InterrogationInput) (*InterrogationResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "counsel.brain.interrogation"})
	sc := logger.StartSpan(ctx, "brain.interrogation.execute")
	defer sc.End()
	ctx = sc.Context()

	status := model.InterrogationDeconstructing
	e.transition(ctx, in.SessionID, status)

	decon, err := extract[DeconstructionResult](ctx, e.llm, PhaseDeconstruction, llm.Request{
		SystemPrompt: deconstructionSystemPrompt,
		UserPrompt:   buildDeconstructionPrompt(in.Query, in.State),
		SchemaName:   "deconstruction_result",
		Schema:       llm.GenerateSchema[DeconstructionResult](),
		Temperature:  llm.Temp(0),
	})
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	merged, transitions := mergeDeconstruction(in.State, decon)
	round := model.InterrogationRound{
		CycleIndex:     in.CycleIndex,
		ExtractedTopic: decon.Topic,
		ExtractedFacts: rawFacts(decon),
	}

	slog.InfoContext(ctx, "deconstruction complete",
		"topic", decon.Topic,
		"facts_extracted", len(decon.Facts),
		"parties_extracted", len(decon.Parties),
		"fact_transitions", transitions)

	status = model.InterrogationGapAnalysis
	e.transition(ctx, in.SessionID, status)

	gaps, err := extract[GapAnalysisResult](ctx, e.llm, PhaseGapAnalysis, llm.Request{
		SystemPrompt: gapAnalysisSystemPrompt,
		UserPrompt:   buildGapAnalysisPrompt(in.Query, merged),
		SchemaName:   "gap_analysis_result",
		Schema:       llm.GenerateSchema[GapAnalysisResult](),
		Temperature:  llm.Temp(0),
	})
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	missing := gaps.Gaps()
	merged.ReplaceMissingInfo(missing)
	round.MissingCritical = missing

	result := &InterrogationResult{
		State:       merged,
		Round:       round,
		Transitions: transitions,
	}

	if len(missing) > 0 {
		result.Status = model.InterrogationWaitingForInput
		result.Question = BuildQuestion(missing)
	} else {
		result.Status = model.InterrogationReady
	}

	e.effects.writeWorksheet(ctx, in.SessionID, merged)
	e.transition(ctx, in.SessionID, result.Status)

	sc.SetAttributes("status", string(result.Status))
	slog.InfoContext(ctx, "interrogation cycle complete",
		"status", result.Status,
		"cycle", in.CycleIndex,
		"missing_critical", len(missing))

	return result, nil
}

// extract runs one structured call with a single retry for malformed or transient
// failures. Each attempt decodes into a fresh value so nothing leaks between attempts.
// Anything left after the retry is a fatal ExtractionError.
func extract[T any, PT interface {
	*T
	validator
}](ctx context.Context, client llm.Client, phase Phase, req llm.Request) (PT, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Phase: logger.Ptr(string(phase))})

	var lastErr error
	for attempt := 1; attempt <= extractionMaxAttempts; attempt++ {
		result := PT(new(T))
		_, err := client.Chat(ctx, req, result)
		if err == nil {
			if err = result.Validate(); err != nil {
				err = fmt.Errorf("%w: %v", llm.ErrUnparsable, err)
			}
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", phase, ctx.Err())
		}
		if !llm.IsRetryable(ctx, err) {
			return nil, &ExtractionError{Phase: phase, Attempts: attempt, Fatal: true, Err: err}
		}
		if attempt < extractionMaxAttempts {
			slog.WarnContext(ctx, "extraction failed, retrying", "attempt", attempt, "error", err)
		}
	}

	return nil, &ExtractionError{Phase: phase, Attempts: extractionMaxAttempts, Fatal: true, Err: lastErr}
}

func (e *InterrogationEngine) transition(ctx context.Context, sessionID string, status model.InterrogationStatus) {
	slog.DebugContext(ctx, "interrogation state", "status", status)
	e.effects.notify(ctx, sessionID, statusText(status))
}

func statusText(status model.InterrogationStatus) string {
	switch status {
	case model.InterrogationDeconstructing:
		return "Reviewing the details of your case"
	case model.InterrogationGapAnalysis:
		return "Checking for missing information"
	case model.InterrogationWaitingForInput:
		return "Waiting for additional information"
	case model.InterrogationReady:
		return "Case file complete"
	default:
		return string(status)
	}
}

// mergeDeconstruction applies an extraction to a copy of state. Facts, parties and
// evidence are appended; scalar fields are only overwritten by non-empty values.
func mergeDeconstruction(state *model.CaseState, r *DeconstructionResult) (*model.CaseState, int) {
	merged := state.Clone()

	if t := strings.TrimSpace(r.Topic); t != "" {
		merged.Topic = t
	}
	if s := strings.TrimSpace(r.Summary); s != "" {
		merged.Summary = s
	}
	if j := strings.TrimSpace(r.Jurisdiction); j != "" {
		merged.Jurisdiction = j
	}
	if c := strings.TrimSpace(r.Classification); c != "" {
		merged.Classification = &c
	}

	transitions := 0
	for _, f := range rawFacts(r) {
		if merged.AppendFact(f) {
			transitions++
		}
	}

	for _, p := range r.Parties {
		role, _ := model.ParsePartyRole(p.Role)
		party := model.Party{Name: strings.TrimSpace(p.Name), Role: role}
		if d := strings.TrimSpace(p.Description); d != "" {
			party.Description = &d
		}
		merged.AppendParty(party)
	}

	for _, ev := range r.Evidence {
		evidence := model.Evidence{Description: strings.TrimSpace(ev.Description), Type: strings.TrimSpace(ev.Type)}
		if rel := strings.TrimSpace(ev.Relevance); rel != "" {
			evidence.Relevance = &rel
		}
		merged.AppendEvidence(evidence)
	}

	return merged, transitions
}

func rawFacts(r *DeconstructionResult) []model.Fact {
	facts := make([]model.Fact, 0, len(r.Facts)+len(r.Dates))
	for _, f := range r.Facts {
		status, _ := model.ParseFactStatus(f.Status)
		facts = append(facts, model.Fact{
			Content: strings.TrimSpace(f.Content),
			Source:  strings.TrimSpace(f.Source),
			Status:  status,
		})
	}
	for _, d := range r.Dates {
		if d = strings.TrimSpace(d); d != "" {
			facts = append(facts, model.Fact{Content: "Date: " + d, Source: "extraction", Status: model.FactStatusAssumed})
		}
	}
	return facts
}

// BuildQuestion turns the named gaps into a single consolidated question.
func BuildQuestion(missing []string) string {
	var sb strings.Builder
	sb.WriteString("To proceed, I need the following information:")
	for i, m := range missing {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, m)
	}
	return sb.String()
}

func buildDeconstructionPrompt(query string, state *model.CaseState) string {
	var sb strings.Builder
	if caseFile := state.Render(); caseFile != "" {
		sb.WriteString("## Stored case file\n")
		sb.WriteString(caseFile)
		sb.WriteString("\n")
	}
	sb.WriteString("## Request\n")
	sb.WriteString(query)
	return sb.String()
}

func buildGapAnalysisPrompt(query string, state *model.CaseState) string {
	var sb strings.Builder
	sb.WriteString("## Request\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	if caseFile := state.Render(); caseFile != "" {
		sb.WriteString(caseFile)
	} else {
		sb.WriteString("## Case File\n(empty)\n")
	}
	return sb.String()
}

const deconstructionSystemPrompt = `You extract case information from a legal request and the stored case file.

Extract only what is stated. Never infer or invent facts, parties, dates or evidence.
Leave any field empty when the request does not provide it.
Mark a fact "confirmed" only when the user states it as certain, "disputed" when the user says it is contested, and "assumed" otherwise.
Do not repeat items already in the stored case file unless their status changed.`

const gapAnalysisSystemPrompt = `You decide whether a legal request can be handled with the information in the case file.

List each piece of information that is critical and missing, for example the identity of a contract party, the contract value, or the governing jurisdiction.
Name each gap in a short phrase. Do not list nice-to-have details.
Return an empty missing_critical list when nothing critical is missing.`

package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/internal/model"
)

const (
	routerHistoryWindow = 10
	routerMaxAttempts   = 2
)

type routerToolCall struct {
	Name         string `json:"name" jsonschema:"enum=legal_search,enum=case_file_lookup" jsonschema_description:"Tool to invoke"`
	Query        string `json:"query" jsonschema_description:"Search query for legal_search; empty for case_file_lookup"`
	Jurisdiction string `json:"jurisdiction" jsonschema_description:"Jurisdiction filter, empty when unknown"`
}

type routerOutput struct {
	Intent    string           `json:"intent" jsonschema:"enum=LEGAL_RESEARCH,enum=CONTRACT_DRAFT,enum=CASE_ANALYSIS,enum=GENERAL"`
	Reasoning string           `json:"reasoning" jsonschema_description:"One sentence explaining the classification"`
	ToolCalls []routerToolCall `json:"tool_calls"`
}

// RouterEngine classifies a message into exactly one intent and plans tool calls for it.
// It never touches the case state.
type RouterEngine struct {
	llm llm.Client
}

func NewRouterEngine(client llm.Client) *RouterEngine {
	return &RouterEngine{llm: client}
}

func (r *RouterEngine) Classify(ctx context.Context, conv model.ConversationContext) (model.RouterDecision, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "counsel.brain.router"})
	sc := logger.StartSpan(ctx, "brain.router.classify")
	defer sc.End()
	ctx = sc.Context()

	latest, ok := conv.LatestUserMessage()
	if !ok {
		err := &RoutingError{Reason: "no user message to classify", Err: ErrEmptyMessage}
		sc.RecordError(err)
		return model.RouterDecision{}, err
	}

	req := llm.Request{
		SystemPrompt: routerSystemPrompt,
		UserPrompt:   buildRouterPrompt(conv, latest),
		SchemaName:   "router_decision",
		Schema:       llm.GenerateSchema[routerOutput](),
		Temperature:  llm.Temp(0),
	}

	var out routerOutput
	var err error
	for attempt := 1; attempt <= routerMaxAttempts; attempt++ {
		out = routerOutput{}
		_, err = r.llm.Chat(ctx, req, &out)
		if err == nil {
			break
		}
		if !errors.Is(err, llm.ErrUnparsable) || ctx.Err() != nil {
			break
		}
		slog.WarnContext(ctx, "router output unparsable, retrying", "attempt", attempt, "error", err)
	}
	if err != nil {
		routingErr := &RoutingError{Reason: "classification call failed", Err: err}
		sc.RecordError(routingErr)
		return model.RouterDecision{}, routingErr
	}

	intent, ok := model.ParseIntent(out.Intent)
	if !ok {
		routingErr := &RoutingError{Reason: fmt.Sprintf("unrecognised intent %q", out.Intent), Err: ErrUnknownIntent}
		sc.RecordError(routingErr)
		return model.RouterDecision{}, routingErr
	}

	decision := model.RouterDecision{
		Intent:    intent,
		Reasoning: out.Reasoning,
		ToolCalls: r.toolCalls(ctx, out.ToolCalls),
	}
	decision, err = PlanTools(decision, latest)
	if err != nil {
		sc.RecordError(err)
		return model.RouterDecision{}, &RoutingError{Reason: "no pipeline for intent", Err: err}
	}

	sc.SetAttributes("intent", string(decision.Intent))
	slog.InfoContext(ctx, "request classified",
		"intent", decision.Intent,
		"tool_calls", len(decision.ToolCalls),
		"reasoning", logger.Truncate(decision.Reasoning, 200))

	return decision, nil
}

func (r *RouterEngine) toolCalls(ctx context.Context, raw []routerToolCall) []model.ToolCall {
	calls := make([]model.ToolCall, 0, len(raw))
	for _, tc := range raw {
		name, ok := model.KnownTool(tc.Name)
		if !ok {
			slog.WarnContext(ctx, "dropping unknown tool call", "tool", tc.Name)
			continue
		}

		call := model.ToolCall{ID: uuid.NewString(), Name: name}
		if name == model.ToolLegalSearch {
			query := strings.TrimSpace(tc.Query)
			if query == "" {
				slog.WarnContext(ctx, "dropping legal_search call without query")
				continue
			}
			call.Arguments = map[string]string{"query": query}
			if j := strings.TrimSpace(tc.Jurisdiction); j != "" {
				call.Arguments["jurisdiction"] = j
			}
		}
		calls = append(calls, call)
	}
	return calls
}

// PlanTools makes the decision's tool calls consistent with its intent's pipeline:
// research intents always carry a legal_search call, other intents never do.
func PlanTools(decision model.RouterDecision, query string) (model.RouterDecision, error) {
	pipeline, err := PipelineFor(decision.Intent)
	if err != nil {
		return decision, err
	}

	calls := make([]model.ToolCall, 0, len(decision.ToolCalls)+1)
	for _, tc := range decision.ToolCalls {
		if tc.Name == model.ToolLegalSearch && !pipeline.RequiresResearch {
			continue
		}
		calls = append(calls, tc)
	}

	if pipeline.RequiresResearch && !decision.HasTool(model.ToolLegalSearch) && strings.TrimSpace(query) != "" {
		calls = append(calls, model.ToolCall{
			ID:        uuid.NewString(),
			Name:      model.ToolLegalSearch,
			Arguments: map[string]string{"query": strings.TrimSpace(query)},
		})
	}

	decision.ToolCalls = calls
	return decision, nil
}

func buildRouterPrompt(conv model.ConversationContext, latest string) string {
	var sb strings.Builder

	history := conv.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	if len(history) > routerHistoryWindow {
		history = history[len(history)-routerHistoryWindow:]
	}

	if len(history) > 0 {
		sb.WriteString("## Conversation so far\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, logger.Truncate(m.Content, 500))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Latest message\n")
	sb.WriteString(latest)
	return sb.String()
}

const routerSystemPrompt = `You classify requests sent to a legal assistant. Requests may be in Arabic or English.

Pick exactly one intent:
- LEGAL_RESEARCH: the user wants to find, read or understand a law, regulation, article or precedent.
- CONTRACT_DRAFT: the user wants a contract, agreement, letter or other legal document written.
- CASE_ANALYSIS: the user describes their own dispute or situation and wants an assessment.
- GENERAL: anything else, including greetings and questions about the assistant.

Tools:
- legal_search(query, jurisdiction): search the legal corpus. Required for LEGAL_RESEARCH and CASE_ANALYSIS. Write the query in the user's language.
- case_file_lookup: include the session's case file. Use when the user refers to facts given earlier.

Return only the structured result.`

package model

import (
	"strings"
)

// Intent is the closed set of request categories the router may choose from.
// Adding a value requires a router schema update and a dispatch table entry.
type Intent string

const (
	IntentLegalResearch Intent = "LEGAL_RESEARCH"
	IntentContractDraft Intent = "CONTRACT_DRAFT"
	IntentCaseAnalysis  Intent = "CASE_ANALYSIS"
	IntentGeneral       Intent = "GENERAL"
)

// Intents lists every valid intent in a stable order.
func Intents() []Intent {
	return []Intent{IntentLegalResearch, IntentContractDraft, IntentCaseAnalysis, IntentGeneral}
}

// ParseIntent accepts case and separator variations ("legal research", "legal-research").
// It never guesses: anything outside the closed set is rejected.
func ParseIntent(s string) (Intent, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	for _, intent := range Intents() {
		if Intent(normalized) == intent {
			return intent, true
		}
	}
	return "", false
}

func (i Intent) String() string {
	return string(i)
}

type ToolName string

const (
	ToolLegalSearch    ToolName = "legal_search"
	ToolCaseFileLookup ToolName = "case_file_lookup"
)

func KnownTool(name string) (ToolName, bool) {
	switch ToolName(strings.ToLower(strings.TrimSpace(name))) {
	case ToolLegalSearch:
		return ToolLegalSearch, true
	case ToolCaseFileLookup:
		return ToolCaseFileLookup, true
	default:
		return "", false
	}
}

type ToolCall struct {
	ID        string            `json:"id"`
	Name      ToolName          `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// RouterDecision is produced once per incoming message and consumed immediately.
type RouterDecision struct {
	Intent    Intent     `json:"intent"`
	ToolCalls []ToolCall `json:"tool_calls"`
	Reasoning string     `json:"reasoning,omitempty"`
}

func (d RouterDecision) HasTool(name ToolName) bool {
	return len(d.ToolCallsNamed(name)) > 0
}

func (d RouterDecision) ToolCallsNamed(name ToolName) []ToolCall {
	var calls []ToolCall
	for _, tc := range d.ToolCalls {
		if tc.Name == name {
			calls = append(calls, tc)
		}
	}
	return calls
}

// LegalSource is one hit from the legal corpus.
type LegalSource struct {
	Citation     string `json:"citation"`
	Title        string `json:"title"`
	Excerpt      string `json:"excerpt"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

package model

// DraftArtifact is the drafting stage's output. Never mutated; later stages build new values.
//
// ResearchContext is everything the draft was grounded on: retrieved sources and the
// rendered case file. Only Sources may back a citation.
type DraftArtifact struct {
	Text            string `json:"text"`
	Intent          Intent `json:"intent"`
	ResearchContext string `json:"research_context"`
	Sources         string `json:"sources"`
	Topic           string `json:"topic,omitempty"`
}

// ReviewedArtifact is the only kind of text the system releases to the user.
type ReviewedArtifact struct {
	FinalText            string `json:"final_text"`
	DisclaimerAppended   bool   `json:"disclaimer_appended"`
	HallucinationFlagged bool   `json:"hallucination_flagged"`
	OutcomeRewritten     bool   `json:"outcome_rewritten"`
}

type InterrogationStatus string

const (
	InterrogationDeconstructing  InterrogationStatus = "DECONSTRUCTING"
	InterrogationGapAnalysis     InterrogationStatus = "GAP_ANALYSIS"
	InterrogationWaitingForInput InterrogationStatus = "WAITING_FOR_INPUT"
	InterrogationReady           InterrogationStatus = "READY"
)

// InterrogationRound records one deconstruction + gap-analysis cycle. Never persisted.
type InterrogationRound struct {
	CycleIndex      int      `json:"cycle_index"`
	ExtractedTopic  string   `json:"extracted_topic"`
	ExtractedFacts  []Fact   `json:"extracted_facts"`
	MissingCritical []string `json:"missing_critical"`
}

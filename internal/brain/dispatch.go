package brain

import (
	"fmt"

	"basegraph.app/counsel/internal/model"
)

// Pipeline describes which specialist stages run for an intent. Drafting and review
// always run.
type Pipeline struct {
	RequiresInterrogation bool
	RequiresResearch      bool
}

// dispatchTable must have an entry for every model.Intents() value.
var dispatchTable = map[model.Intent]Pipeline{
	model.IntentLegalResearch: {RequiresResearch: true},
	model.IntentContractDraft: {RequiresInterrogation: true},
	model.IntentCaseAnalysis:  {RequiresInterrogation: true, RequiresResearch: true},
	model.IntentGeneral:       {},
}

func PipelineFor(intent model.Intent) (Pipeline, error) {
	p, ok := dispatchTable[intent]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %q has no pipeline", ErrUnknownIntent, intent)
	}
	return p, nil
}

package orchestrator

import (
	"strings"

	"github.com/entrhq/scout/pkg/types"
)

const (
	taskPrefix   = "TASK:"
	finishPrefix = "FINISH:"
)

// Decision is one parsed planner reply.
type Decision struct {
	Kind types.DecisionKind
	// Text is the task for the doer or the final answer, trimmed.
	Text string
}

// ParseDecision is the only translation from raw planner output to a
// decision. The prefixes are case-sensitive. Output that starts with
// neither prefix, or carries an empty body, is a contract violation whose
// detail is the raw output.
func ParseDecision(raw string) (Decision, error) {
	trimmed := strings.TrimSpace(raw)

	var d Decision
	switch {
	case strings.HasPrefix(trimmed, taskPrefix):
		d = Decision{Kind: types.DecisionTask, Text: strings.TrimSpace(trimmed[len(taskPrefix):])}
	case strings.HasPrefix(trimmed, finishPrefix):
		d = Decision{Kind: types.DecisionFinish, Text: strings.TrimSpace(trimmed[len(finishPrefix):])}
	default:
		return Decision{}, types.NewContractViolation(raw)
	}
	if d.Text == "" {
		return Decision{}, types.NewContractViolation(raw)
	}
	return d, nil
}

package status

// defaultTxActionMapping maps processor txaction keywords to transitions.
// Keywords without an entry are acknowledged but do not change state.
var defaultTxActionMapping = map[string]Transition{
	"appointed":   TransitionAuthorize,
	"capture":     TransitionPay,
	"paid":        TransitionPay,
	"underpaid":   TransitionPayPartially,
	"refund":      TransitionRefund,
	"debit":       TransitionRefund,
	"cancelation": TransitionCancel,
	"failed":      TransitionFail,
}

// buildMapping merges configured overrides onto the default keyword mapping.
// Overrides naming an unknown transition are dropped by the caller.
func buildMapping(overrides map[string]string) map[string]Transition {
	mapping := make(map[string]Transition, len(defaultTxActionMapping)+len(overrides))
	for keyword, transition := range defaultTxActionMapping {
		mapping[keyword] = transition
	}
	for keyword, name := range overrides {
		transition := Transition(name)
		if _, ok := transitionRules[transition]; ok {
			mapping[keyword] = transition
		}
	}
	return mapping
}

package engine

import "github.com/agentrt/core/com"

// ContinuationDecision is what a ContinuationCallback returns. Exactly
// one of Continue/Stop should be set true by callers that want to
// override the chain's current value; leaving both false defers to
// whatever the chain already holds (the "undefined" case in the spec's
// callback vocabulary, where a nil *ContinuationDecision return plays the
// same role).
type ContinuationDecision struct {
	Continue bool
	Stop     bool
	Reason   string

	// Priority sets this decision's weight in com.ResolveShouldContinue's
	// priority-tiered fold. Zero is the default tier used by ordinary
	// continuation callbacks; hooks that must override everything else
	// (e.g. an abort handler) should use a higher value.
	Priority int
}

// ContinuationResult is the tick outcome passed to each
// ContinuationCallback: whether the model response carried tool calls and
// the engine's view of the response. The COM is passed to the callback as
// a separate argument.
type ContinuationResult struct {
	HadToolCalls bool
	Response     EngineResponse
}

// ContinuationCallback observes one tick's result and may steer whether
// the engine continues to the next tick. Returning nil adds no vote; a
// non-nil decision is recorded on the COM as a stop and/or continue
// request at the decision's Priority. Every callback receives the same
// result: a callback does not see the decisions of earlier callbacks.
type ContinuationCallback func(result ContinuationResult, c *com.COM) *ContinuationDecision

// runContinuations calls the registered callbacks in registration order,
// records each non-nil decision on c through RequestStop/RequestContinue,
// and then resolves the final value with c.ResolveShouldContinue(seed),
// which also folds any requests components made directly on c during the
// tick. Decisions take effect only in that final fold; no running value
// is passed from one callback to the next.
func runContinuations(seed bool, result ContinuationResult, c *com.COM, callbacks []ContinuationCallback) bool {
	for _, cb := range callbacks {
		decision := cb(result, c)
		if decision == nil {
			continue
		}
		if decision.Stop {
			c.RequestStop(decision.Priority, decision.Reason)
		}
		if decision.Continue {
			c.RequestContinue(decision.Priority, decision.Reason)
		}
	}
	return c.ResolveShouldContinue(seed)
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrt/core/com"
)

func TestRunContinuations_NoCallbacksPreservesSeed(t *testing.T) {
	c := com.New()
	assert.True(t, runContinuations(true, ContinuationResult{}, c, nil))
	assert.False(t, runContinuations(false, ContinuationResult{}, c, nil))
}

func TestRunContinuations_CallbackOverridesSeed(t *testing.T) {
	c := com.New()
	callbacks := []ContinuationCallback{
		func(r ContinuationResult, c *com.COM) *ContinuationDecision {
			return &ContinuationDecision{Stop: true, Reason: "budget exceeded"}
		},
	}
	assert.False(t, runContinuations(true, ContinuationResult{}, c, callbacks))
}

func TestRunContinuations_NilDecisionDefersToSeed(t *testing.T) {
	c := com.New()
	callbacks := []ContinuationCallback{
		func(r ContinuationResult, c *com.COM) *ContinuationDecision { return nil },
	}
	assert.True(t, runContinuations(true, ContinuationResult{}, c, callbacks))
}

func TestRunContinuations_StopWinsOverContinueAtSamePriority(t *testing.T) {
	c := com.New()
	callbacks := []ContinuationCallback{
		func(r ContinuationResult, c *com.COM) *ContinuationDecision {
			return &ContinuationDecision{Continue: true, Reason: "wants more"}
		},
		func(r ContinuationResult, c *com.COM) *ContinuationDecision {
			return &ContinuationDecision{Stop: true, Reason: "budget exceeded"}
		},
	}
	assert.False(t, runContinuations(false, ContinuationResult{}, c, callbacks))
}

func TestRunContinuations_HigherPriorityDecisionOverridesLowerPriority(t *testing.T) {
	c := com.New()
	callbacks := []ContinuationCallback{
		func(r ContinuationResult, c *com.COM) *ContinuationDecision {
			return &ContinuationDecision{Stop: true, Priority: 0, Reason: "low priority stop"}
		},
		func(r ContinuationResult, c *com.COM) *ContinuationDecision {
			return &ContinuationDecision{Continue: true, Priority: 10, Reason: "high priority override"}
		},
	}
	assert.True(t, runContinuations(false, ContinuationResult{}, c, callbacks))
}

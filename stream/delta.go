// Package stream implements the provider-independent stream accumulator: a
// state machine that converts a sequence of normalized AdapterDelta events
// into lifecycle-correct block events (start/delta/end/complete) and a
// final structured message, tolerating providers that omit explicit block
// terminators.
package stream

import "github.com/agentrt/core/model"

// DeltaKind tags the normalized alphabet a model adapter emits into the
// accumulator, independent of any provider's wire format.
type DeltaKind string

const (
	DeltaMessageStart     DeltaKind = "message_start"
	DeltaText             DeltaKind = "text"
	DeltaReasoning        DeltaKind = "reasoning"
	DeltaContentMetadata  DeltaKind = "content_metadata"
	DeltaReasoningMetadata DeltaKind = "reasoning_metadata"
	DeltaToolCallStart    DeltaKind = "tool_call_start"
	DeltaToolCallDelta    DeltaKind = "tool_call_delta"
	DeltaToolCallEnd      DeltaKind = "tool_call_end"
	DeltaToolCall         DeltaKind = "tool_call" // non-streamed, complete in one event
	DeltaUsage            DeltaKind = "usage"
	DeltaMessageEnd       DeltaKind = "message_end"
	DeltaError            DeltaKind = "error"
	DeltaRaw              DeltaKind = "raw"
)

// Usage accumulates token usage; mergeMax takes the max of each field so usage
// deltas from a provider that reports running totals never regress.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func (u Usage) mergeMax(other Usage) Usage {
	return Usage{
		InputTokens:  maxInt(u.InputTokens, other.InputTokens),
		OutputTokens: maxInt(u.OutputTokens, other.OutputTokens),
		TotalTokens:  maxInt(u.TotalTokens, other.TotalTokens),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// AdapterDelta is one normalized event in the accumulator's input alphabet.
// Only the fields relevant to Kind are populated.
type AdapterDelta struct {
	Kind DeltaKind

	// text / reasoning
	Text     string
	Metadata model.Metadata

	// tool_call_start / tool_call_delta / tool_call_end / tool_call
	ToolCallID    string
	ToolCallName  string
	ToolCallDelta string
	ToolCallInput map[string]any // pre-decoded input, when the provider doesn't stream raw JSON

	Usage Usage

	StopReason string
	ModelID    string

	Error error
	Raw   any
}

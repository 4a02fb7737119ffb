package stream

import (
	"encoding/json"

	"github.com/agentrt/core/model"
)

// EventKind tags one lifecycle event emitted by the accumulator as it
// processes a delta stream.
type EventKind string

const (
	EventMessageStart  EventKind = "message_start"
	EventContentStart  EventKind = "content_start"
	EventContentDelta  EventKind = "content_delta"
	EventContentEnd    EventKind = "content_end"
	EventContent       EventKind = "content"
	EventReasoningStart EventKind = "reasoning_start"
	EventReasoningDelta EventKind = "reasoning_delta"
	EventReasoningEnd   EventKind = "reasoning_end"
	EventReasoning      EventKind = "reasoning"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallDelta  EventKind = "tool_call_delta"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventToolCall       EventKind = "tool_call"
	EventMessageEnd     EventKind = "message_end"
)

// Event is one lifecycle event emitted by the accumulator, forwarded live
// to any Subscribe-registered sink and also returned from Push.
type Event struct {
	Kind       EventKind
	BlockIndex int

	TextDelta string

	ToolCallID    string
	ToolCallName  string
	ToolCallDelta string
	ToolCallInput map[string]any

	// Part carries the full block payload for EventContent/EventReasoning/
	// EventToolCall events.
	Part model.Part

	StopReason string
	ModelID    string
	Usage      Usage
}

// Sink receives lifecycle events as the accumulator emits them, live,
// independent of any transport. The accumulator has no transport
// dependency of its own; forwarding events onto a websocket/SSE/event-bus
// boundary is strictly the caller's concern.
type Sink func(Event)

type pendingToolCall struct {
	name       string
	blockIndex int
	inputJSON  []byte
}

// CompletedToolCall is one finalized tool invocation, decoded from either
// an explicit input or tolerantly-parsed accumulated JSON.
type CompletedToolCall struct {
	ID         string
	Name       string
	Input      map[string]any
	BlockIndex int
}

// Accumulator converts a sequence of normalized AdapterDelta events into
// lifecycle events and a final structured message. One instance is used per
// model invocation (one per tick) and discarded after ToModelOutput.
type Accumulator struct {
	sinks []Sink

	messageStarted   bool
	textStarted      bool
	reasoningStarted bool
	blockIndex       int

	toolCalls      map[string]*pendingToolCall
	toolCallOrder  []string
	completedCalls []CompletedToolCall

	text      []byte
	reasoning []byte

	currentBlockText     []byte
	currentReasoningText []byte

	contentMetadata   model.Metadata
	reasoningMetadata model.Metadata

	contentMetadataTotal   model.Metadata
	reasoningMetadataTotal model.Metadata

	usage      Usage
	stopReason string
	modelID    string
}

// New constructs an empty Accumulator for one model invocation.
func New() *Accumulator {
	return &Accumulator{toolCalls: make(map[string]*pendingToolCall)}
}

// Subscribe registers a sink invoked, in order, for every event Push emits.
func (a *Accumulator) Subscribe(sink Sink) {
	a.sinks = append(a.sinks, sink)
}

func (a *Accumulator) emit(ev Event) Event {
	for _, s := range a.sinks {
		s(ev)
	}
	return ev
}

// Push processes one AdapterDelta and returns the lifecycle events it
// produced, in order. Subscribed sinks receive the same events
// synchronously, in the same call.
func (a *Accumulator) Push(d AdapterDelta) []Event {
	var out []Event
	emit := func(ev Event) { out = append(out, a.emit(ev)) }

	switch d.Kind {
	case DeltaMessageStart:
		a.messageStarted = true
		emit(Event{Kind: EventMessageStart})

	case DeltaText:
		a.ensureMessageStarted(emit)
		if a.reasoningStarted {
			a.closeReasoning(emit)
		}
		if !a.textStarted {
			a.textStarted = true
			emit(Event{Kind: EventContentStart, BlockIndex: a.blockIndex})
		}
		a.text = append(a.text, d.Text...)
		a.currentBlockText = append(a.currentBlockText, d.Text...)
		emit(Event{Kind: EventContentDelta, BlockIndex: a.blockIndex, TextDelta: d.Text})

	case DeltaReasoning:
		a.ensureMessageStarted(emit)
		if a.textStarted {
			a.closeText(emit)
		}
		if !a.reasoningStarted {
			a.reasoningStarted = true
			emit(Event{Kind: EventReasoningStart, BlockIndex: a.blockIndex})
		}
		a.reasoning = append(a.reasoning, d.Text...)
		a.currentReasoningText = append(a.currentReasoningText, d.Text...)
		emit(Event{Kind: EventReasoningDelta, BlockIndex: a.blockIndex, TextDelta: d.Text})

	case DeltaContentMetadata:
		a.contentMetadata = a.contentMetadata.Merge(d.Metadata)

	case DeltaReasoningMetadata:
		a.reasoningMetadata = a.reasoningMetadata.Merge(d.Metadata)

	case DeltaToolCallStart:
		a.ensureMessageStarted(emit)
		if a.textStarted {
			a.closeText(emit)
		}
		if a.reasoningStarted {
			a.closeReasoning(emit)
		}
		idx := a.blockIndex
		a.toolCalls[d.ToolCallID] = &pendingToolCall{name: d.ToolCallName, blockIndex: idx}
		a.toolCallOrder = append(a.toolCallOrder, d.ToolCallID)
		emit(Event{Kind: EventToolCallStart, BlockIndex: idx, ToolCallID: d.ToolCallID, ToolCallName: d.ToolCallName})

	case DeltaToolCallDelta:
		idx := a.blockIndex
		if tc, ok := a.toolCalls[d.ToolCallID]; ok {
			tc.inputJSON = append(tc.inputJSON, d.ToolCallDelta...)
			idx = tc.blockIndex
		}
		emit(Event{Kind: EventToolCallDelta, BlockIndex: idx, ToolCallID: d.ToolCallID, ToolCallDelta: d.ToolCallDelta})

	case DeltaToolCallEnd:
		a.finalizeToolCall(d.ToolCallID, d.ToolCallInput, emit)

	case DeltaToolCall:
		input := d.ToolCallInput
		if input == nil {
			input = map[string]any{}
		}
		idx := a.blockIndex
		call := CompletedToolCall{ID: d.ToolCallID, Name: d.ToolCallName, Input: input, BlockIndex: idx}
		a.completedCalls = append(a.completedCalls, call)
		a.blockIndex++
		emit(Event{Kind: EventToolCall, BlockIndex: idx, ToolCallID: d.ToolCallID, ToolCallName: d.ToolCallName, ToolCallInput: input,
			Part: model.ToolUsePart{Index: idx, ID: d.ToolCallID, Name: d.ToolCallName, Input: input}})

	case DeltaUsage:
		a.usage = a.usage.mergeMax(d.Usage)
		if d.StopReason != "" {
			a.stopReason = d.StopReason
		}

	case DeltaMessageEnd:
		if a.textStarted {
			a.closeText(emit)
		}
		if a.reasoningStarted {
			a.closeReasoning(emit)
		}
		// Finalize any tool call the provider never explicitly terminated.
		for _, id := range a.toolCallOrder {
			if _, stillOpen := a.toolCalls[id]; stillOpen {
				a.finalizeToolCall(id, nil, emit)
			}
		}
		a.usage = a.usage.mergeMax(d.Usage)
		if d.StopReason != "" {
			a.stopReason = d.StopReason
		}
		a.modelID = d.ModelID
		emit(Event{Kind: EventMessageEnd, BlockIndex: a.blockIndex, StopReason: a.stopReason, Usage: a.usage, ModelID: d.ModelID})

	case DeltaError, DeltaRaw:
		// Raw/error passthrough deltas carry no block-lifecycle obligation;
		// callers surface them through the engine's error path directly.
	}

	return out
}

func (a *Accumulator) ensureMessageStarted(emit func(Event)) {
	if a.messageStarted {
		return
	}
	a.messageStarted = true
	emit(Event{Kind: EventMessageStart})
}

func (a *Accumulator) closeText(emit func(Event)) {
	idx := a.blockIndex
	text := string(a.currentBlockText)
	metadata := a.contentMetadata
	a.contentMetadataTotal = a.contentMetadataTotal.Merge(metadata)
	part := model.TextPart{Index: idx, Text: text, Metadata: metadata}
	emit(Event{Kind: EventContentEnd, BlockIndex: idx})
	emit(Event{Kind: EventContent, BlockIndex: idx, Part: part})
	a.textStarted = false
	a.currentBlockText = nil
	a.contentMetadata = model.Metadata{}
	a.blockIndex++
}

func (a *Accumulator) closeReasoning(emit func(Event)) {
	idx := a.blockIndex
	text := string(a.currentReasoningText)
	metadata := a.reasoningMetadata
	a.reasoningMetadataTotal = a.reasoningMetadataTotal.Merge(metadata)
	part := model.ReasoningPart{Index: idx, Text: text, Metadata: metadata}
	emit(Event{Kind: EventReasoningEnd, BlockIndex: idx})
	emit(Event{Kind: EventReasoning, BlockIndex: idx, Part: part})
	a.reasoningStarted = false
	a.currentReasoningText = nil
	a.reasoningMetadata = model.Metadata{}
	a.blockIndex++
}

func (a *Accumulator) finalizeToolCall(id string, explicitInput map[string]any, emit func(Event)) {
	tc, ok := a.toolCalls[id]
	if !ok {
		return
	}
	delete(a.toolCalls, id)

	input := explicitInput
	if input == nil {
		input = parseToolInput(string(tc.inputJSON))
	}

	idx := tc.blockIndex
	a.completedCalls = append(a.completedCalls, CompletedToolCall{ID: id, Name: tc.name, Input: input, BlockIndex: idx})

	emit(Event{Kind: EventToolCallEnd, BlockIndex: idx, ToolCallID: id, ToolCallInput: input})
	emit(Event{Kind: EventToolCall, BlockIndex: idx, ToolCallID: id, ToolCallName: tc.name, ToolCallInput: input,
		Part: model.ToolUsePart{Index: idx, ID: id, Name: tc.name, Input: input}})
	a.blockIndex++
}

// parseToolInput tolerantly decodes accumulated tool-call JSON. Invalid
// JSON is a recoverable condition, not an error: it becomes {"raw": ...}.
func parseToolInput(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]any{"raw": raw}
	}
	return decoded
}

// ToModelOutput assembles the final assistant message as content blocks in
// order [reasoning?, text?, tool_use*], plus the completed tool-call list,
// usage, stop reason, and model id. Calling it twice with no intervening
// Push calls returns an equal result both times.
func (a *Accumulator) ToModelOutput() Output {
	var parts []model.Part
	if len(a.reasoning) > 0 {
		parts = append(parts, model.ReasoningPart{Text: string(a.reasoning), Metadata: a.reasoningMetadataTotal})
	}
	if len(a.text) > 0 {
		parts = append(parts, model.TextPart{Text: string(a.text), Metadata: a.contentMetadataTotal})
	}
	for _, c := range a.completedCalls {
		parts = append(parts, model.ToolUsePart{Index: c.BlockIndex, ID: c.ID, Name: c.Name, Input: c.Input})
	}

	return Output{
		Message: model.Message{
			Role:       model.RoleAssistant,
			Parts:      parts,
			StopReason: a.stopReason,
		},
		ToolCalls:  append([]CompletedToolCall{}, a.completedCalls...),
		Usage:      a.usage,
		StopReason: a.stopReason,
		ModelID:    a.modelID,
	}
}

// Output is the accumulator's final assembled result for one model
// invocation.
type Output struct {
	Message    model.Message
	ToolCalls  []CompletedToolCall
	Usage      Usage
	StopReason string
	ModelID    string
}

package engine

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/stream"
)

// EventKind identifies one lifecycle event's shape. Stream-originated
// kinds mirror stream.EventKind; the remainder are engine-level.
type EventKind string

const (
	EventTickStart    EventKind = "tick_start"
	EventContentStart EventKind = "content_start"
	EventContentDelta EventKind = "content_delta"
	EventContentEnd   EventKind = "content_end"
	EventContent      EventKind = "content"

	EventReasoningStart EventKind = "reasoning_start"
	EventReasoningDelta EventKind = "reasoning_delta"
	EventReasoningEnd   EventKind = "reasoning_end"
	EventReasoning      EventKind = "reasoning"

	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallDelta EventKind = "tool_call_delta"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventToolCall      EventKind = "tool_call"

	EventMessageEnd  EventKind = "message_end"
	EventToolResult  EventKind = "tool_result"
	EventTickEnd     EventKind = "tick_end"
	EventExecutionEnd EventKind = "execution_end"
)

var streamKindToEvent = map[stream.EventKind]EventKind{
	stream.EventContentStart:   EventContentStart,
	stream.EventContentDelta:   EventContentDelta,
	stream.EventContentEnd:     EventContentEnd,
	stream.EventContent:        EventContent,
	stream.EventReasoningStart: EventReasoningStart,
	stream.EventReasoningDelta: EventReasoningDelta,
	stream.EventReasoningEnd:   EventReasoningEnd,
	stream.EventReasoning:      EventReasoning,
	stream.EventToolCallStart:  EventToolCallStart,
	stream.EventToolCallDelta:  EventToolCallDelta,
	stream.EventToolCallEnd:    EventToolCallEnd,
	stream.EventToolCall:       EventToolCall,
	stream.EventMessageEnd:     EventMessageEnd,
}

// Event is one entry in a session's lifecycle event stream. Sequence is
// strictly monotonically increasing within a single session, assigned by
// the engine at emission time regardless of which goroutine produced the
// underlying data (tool handlers run concurrently but still emit through
// the same sequencer).
type Event struct {
	ID        string
	Sequence  uint64
	Tick      int
	Timestamp time.Time
	Kind      EventKind
	Payload   any
}

// ToolResultPayload is the payload of an EventToolResult event.
type ToolResultPayload struct {
	ToolUseID string
	Result    com.ToolResultEntry
}

// ExecutionEndPayload is the payload of the single EventExecutionEnd
// event that closes an execution.
type ExecutionEndPayload struct {
	NewTimelineEntries []com.TimelineEntry
	Timeline           []com.TimelineEntry
	Aborted            bool
}

// eventBuffer assigns monotonically increasing sequence numbers and
// fans events out to subscribers. It is multi-producer (the engine
// thread and concurrent tool handlers both emit through it) and
// multi-consumer.
type eventBuffer struct {
	seq       uint64
	sessionID string
	sinks     []func(Event)
	closed    bool
}

func newEventBuffer(sessionID string) *eventBuffer {
	return &eventBuffer{sessionID: sessionID}
}

// Subscribe registers a sink for every event this buffer emits from now
// on. Not safe to call concurrently with emit; subscribe before the tick
// loop starts.
func (b *eventBuffer) Subscribe(sink func(Event)) {
	b.sinks = append(b.sinks, sink)
}

func (b *eventBuffer) emit(tick int, kind EventKind, payload any) Event {
	seq := atomic.AddUint64(&b.seq, 1)
	ev := Event{
		ID:        eventID(b.sessionID, seq),
		Sequence:  seq,
		Tick:      tick,
		Timestamp: time.Now(),
		Kind:      kind,
		Payload:   payload,
	}
	for _, sink := range b.sinks {
		sink(ev)
	}
	return ev
}

func eventID(sessionID string, seq uint64) string {
	return sessionID + "-" + strconv.FormatUint(seq, 10)
}

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/compiler"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/toolkit"
)

// fakeAdapter streams a fixed sequence of AdapterDeltas per call,
// advancing to the next scripted response on each invocation.
type fakeAdapter struct {
	responses [][]stream.AdapterDelta
	call      int
}

func (f *fakeAdapter) PrepareInput(ctx context.Context, in ModelInput) (ProviderInput, error) {
	return in, nil
}

func (f *fakeAdapter) SupportsStreaming() bool { return true }

func (f *fakeAdapter) ExecuteStream(ctx context.Context, in ProviderInput, sink func(ProviderChunk) error) error {
	var deltas []stream.AdapterDelta
	if f.call < len(f.responses) {
		deltas = f.responses[f.call]
	}
	f.call++
	for _, d := range deltas {
		if err := sink(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAdapter) Execute(ctx context.Context, in ProviderInput) (ProviderOutput, error) {
	return nil, nil
}

func (f *fakeAdapter) MapChunk(chunk ProviderChunk) (*stream.AdapterDelta, error) {
	d, _ := chunk.(stream.AdapterDelta)
	return &d, nil
}

func noopEvaluate(c *com.COM, tick *compiler.TickState) error { return nil }

func TestSession_SingleTickWithNoToolCallsStopsAfterOneTick(t *testing.T) {
	adapter := &fakeAdapter{responses: [][]stream.AdapterDelta{
		{
			{Kind: stream.DeltaMessageStart},
			{Kind: stream.DeltaText, Text: "hello"},
			{Kind: stream.DeltaMessageEnd, StopReason: "STOP"},
		},
	}}

	c := com.New()
	sess := NewSession("s1", c, Config{
		Adapter:  adapter,
		Evaluate: noopEvaluate,
		MaxTicks: 10,
	})

	var events []Event
	sess.Subscribe(func(e Event) { events = append(events, e) })

	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, 1, sess.tick)
	timeline := c.Timeline()
	require.Len(t, timeline, 1)
	assert.Equal(t, "hello", timeline[0].Message.Text())

	var sawExecutionEnd bool
	for _, e := range events {
		if e.Kind == EventExecutionEnd {
			sawExecutionEnd = true
		}
	}
	assert.True(t, sawExecutionEnd)
}

func TestSession_ToolCallDrivesSecondTickThenStops(t *testing.T) {
	adapter := &fakeAdapter{responses: [][]stream.AdapterDelta{
		{
			{Kind: stream.DeltaMessageStart},
			{Kind: stream.DeltaToolCallStart, ToolCallID: "c1", ToolCallName: "echo"},
			{Kind: stream.DeltaToolCallEnd, ToolCallID: "c1", ToolCallInput: map[string]any{}},
			{Kind: stream.DeltaMessageEnd, StopReason: "TOOL_USE"},
		},
		{
			{Kind: stream.DeltaMessageStart},
			{Kind: stream.DeltaText, Text: "done"},
			{Kind: stream.DeltaMessageEnd, StopReason: "STOP"},
		},
	}}

	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "echo",
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{Content: []model.Part{model.TextPart{Text: "ok"}}}, nil
		},
	}))

	sess := NewSession("s2", c, Config{
		Adapter:  adapter,
		Executor: toolkit.New(),
		Evaluate: func(c *com.COM, tick *compiler.TickState) error {
			// Tools must be re-declared every pass, matching the
			// fresh-per-pass section/tool rebuild contract.
			return c.RegisterTool(&com.ToolSpec{
				Name:          "echo",
				ExecutionKind: com.ExecutionServer,
				Audience:      model.AudienceModel,
				Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
					return com.HandlerResult{Content: []model.Part{model.TextPart{Text: "ok"}}}, nil
				},
			})
		},
		MaxTicks: 10,
	})

	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, 2, sess.tick)

	var toolResults int
	for _, e := range c.Timeline() {
		if e.Kind == com.EntryToolResult {
			toolResults++
		}
	}
	assert.Equal(t, 1, toolResults)
}

func TestSession_StopsAtMaxTicksEvenIfStillContinuing(t *testing.T) {
	loop := []stream.AdapterDelta{
		{Kind: stream.DeltaMessageStart},
		{Kind: stream.DeltaToolCallStart, ToolCallID: "x", ToolCallName: "noop"},
		{Kind: stream.DeltaToolCallEnd, ToolCallID: "x", ToolCallInput: map[string]any{}},
		{Kind: stream.DeltaMessageEnd, StopReason: "TOOL_USE"},
	}
	adapter := &fakeAdapter{responses: [][]stream.AdapterDelta{loop, loop, loop, loop, loop}}

	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "noop",
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{}, nil
		},
	}))

	sess := NewSession("s3", c, Config{
		Adapter:  adapter,
		Executor: toolkit.New(),
		Evaluate: func(c *com.COM, tick *compiler.TickState) error {
			return c.RegisterTool(&com.ToolSpec{
				Name:          "noop",
				ExecutionKind: com.ExecutionServer,
				Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
					return com.HandlerResult{}, nil
				},
			})
		},
		MaxTicks: 3,
	})

	require.NoError(t, sess.Run(context.Background()))
	assert.Equal(t, 3, sess.tick)
}

func TestSession_SendMessageIsVisibleToNextTickOnly(t *testing.T) {
	adapter := &fakeAdapter{responses: [][]stream.AdapterDelta{
		{
			{Kind: stream.DeltaMessageStart},
			{Kind: stream.DeltaToolCallStart, ToolCallID: "x", ToolCallName: "noop"},
			{Kind: stream.DeltaToolCallEnd, ToolCallID: "x", ToolCallInput: map[string]any{}},
			{Kind: stream.DeltaMessageEnd, StopReason: "TOOL_USE"},
		},
		{
			{Kind: stream.DeltaMessageStart},
			{Kind: stream.DeltaText, Text: "done"},
			{Kind: stream.DeltaMessageEnd, StopReason: "STOP"},
		},
	}}

	var seenOnFirstTick, seenOnSecondTick int
	c := com.New()
	require.NoError(t, c.RegisterTool(&com.ToolSpec{
		Name:          "noop",
		ExecutionKind: com.ExecutionServer,
		Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
			return com.HandlerResult{}, nil
		},
	}))

	sess := NewSession("s4", c, Config{
		Adapter:  adapter,
		Executor: toolkit.New(),
		Evaluate: func(c *com.COM, tick *compiler.TickState) error {
			queued, _ := c.GetState(queuedMessagesStateKey)
			msgs, _ := queued.([]model.Message)
			if tick.TickNumber == 1 {
				seenOnFirstTick = len(msgs)
			} else {
				seenOnSecondTick = len(msgs)
			}
			return c.RegisterTool(&com.ToolSpec{
				Name:          "noop",
				ExecutionKind: com.ExecutionServer,
				Handler: func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
					return com.HandlerResult{}, nil
				},
			})
		},
		MaxTicks: 2,
	})
	sess.SendMessage(model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}})

	require.NoError(t, sess.Run(context.Background()))
	assert.Equal(t, 1, seenOnFirstTick)
	assert.Equal(t, 0, seenOnSecondTick)
}

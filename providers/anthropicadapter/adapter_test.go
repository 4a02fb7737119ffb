package anthropicadapter

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/engine"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
)

type fakeDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *fakeDecoder) Event() ssestream.Event { return d.events[d.i-1] }
func (d *fakeDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}
func (d *fakeDecoder) Close() error { return nil }
func (d *fakeDecoder) Err() error   { return nil }

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
	resp       *sdk.Message
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, nil
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return s.stream
}

func mustEvent(t *testing.T, raw string) sdk.MessageStreamEventUnion {
	t.Helper()
	var ev sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestExecuteStream_EmitsTextAndToolCallDeltas(t *testing.T) {
	textDelta := mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`)
	toolStart := mustEvent(t, `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t1","name":"lookup"}}`)
	toolDelta := mustEvent(t, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":1}"}}`)
	toolStop := mustEvent(t, `{"type":"content_block_stop","index":1}`)
	msgStop := mustEvent(t, `{"type":"message_stop"}`)

	events := []ssestream.Event{
		{Type: "content_block_delta", Data: mustJSON(t, textDelta)},
		{Type: "content_block_start", Data: mustJSON(t, toolStart)},
		{Type: "content_block_delta", Data: mustJSON(t, toolDelta)},
		{Type: "content_block_stop", Data: mustJSON(t, toolStop)},
		{Type: "message_stop", Data: mustJSON(t, msgStop)},
	}
	dec := &fakeDecoder{events: events}
	stub := &stubMessagesClient{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}

	a, err := New(stub, Options{Model: "claude-x", MaxTokens: 256})
	require.NoError(t, err)

	in, err := a.PrepareInput(context.Background(), engine.ModelInput{
		Messages: []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}}},
	})
	require.NoError(t, err)

	var deltas []*stream.AdapterDelta
	require.NoError(t, a.ExecuteStream(context.Background(), in, func(chunk engine.ProviderChunk) error {
		d, err := a.MapChunk(chunk)
		if err != nil {
			return err
		}
		if d != nil {
			deltas = append(deltas, d)
		}
		return nil
	}))

	var sawText, sawToolStart, sawToolDelta, sawToolEnd bool
	for _, d := range deltas {
		switch d.Kind {
		case stream.DeltaText:
			sawText = d.Text == "hi"
		case stream.DeltaToolCallStart:
			sawToolStart = d.ToolCallID == "t1" && d.ToolCallName == "lookup"
		case stream.DeltaToolCallDelta:
			sawToolDelta = d.ToolCallID == "t1" && d.ToolCallDelta == `{"q":1}`
		case stream.DeltaToolCallEnd:
			sawToolEnd = d.ToolCallID == "t1"
		}
	}
	assert.True(t, sawText, "expected text delta")
	assert.True(t, sawToolStart, "expected tool_call_start delta")
	assert.True(t, sawToolDelta, "expected tool_call_delta")
	assert.True(t, sawToolEnd, "expected tool_call_end delta")
}

func TestPrepareInput_RejectsEmptyMessages(t *testing.T) {
	a, err := New(&stubMessagesClient{}, Options{Model: "claude-x"})
	require.NoError(t, err)
	_, err = a.PrepareInput(context.Background(), engine.ModelInput{})
	assert.Error(t, err)
}

func TestNew_RequiresMessagesClientAndModel(t *testing.T) {
	_, err := New(nil, Options{Model: "claude-x"})
	assert.Error(t, err)

	_, err = New(&stubMessagesClient{}, Options{})
	assert.Error(t, err)
}

func TestMapFullResponse_RejectsToolUseBlocks(t *testing.T) {
	msg := &sdk.Message{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"content": [{"type": "tool_use", "id": "t1", "name": "lookup", "input": {}}]
	}`), msg))
	_, err := mapFullResponse(msg, map[string]string{"lookup": "lookup"})
	assert.Error(t, err)
}

func TestMapFullResponse_ConcatenatesTextBlocks(t *testing.T) {
	msg := &sdk.Message{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "world"}]
	}`), msg))
	d, err := mapFullResponse(msg, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", d.Text)
}

func TestSupportsStreaming_AlwaysTrue(t *testing.T) {
	a, err := New(&stubMessagesClient{}, Options{Model: "claude-x"})
	require.NoError(t, err)
	assert.True(t, a.SupportsStreaming())
}

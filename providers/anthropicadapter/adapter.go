// Package anthropicadapter implements engine.Adapter on top of Claude's
// Messages API via github.com/anthropics/anthropic-sdk-go. It exists to
// prove the Adapter contract is implementable by a real provider SDK; no
// core package imports it.
package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentrt/core/engine"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
)

// MessagesClient is the subset of the Anthropic SDK surface the adapter
// depends on, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the model selection and generation parameters used
// for every request; PrepareInput does not read ModelInput.Metadata.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Adapter implements engine.Adapter against the Anthropic Messages API.
type Adapter struct {
	msg  MessagesClient
	opts Options
}

// New builds an Adapter from a Messages client and options.
func New(msg MessagesClient, opts Options) (*Adapter, error) {
	if msg == nil {
		return nil, errors.New("anthropicadapter: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropicadapter: model is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Adapter{msg: msg, opts: opts}, nil
}

// NewFromAPIKey constructs an Adapter using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, modelID string) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicadapter: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, Options{Model: modelID})
}

// params is the ProviderInput this adapter produces: a fully-built
// MessageNewParams plus the tool-name map needed to decode tool_use
// blocks back to their canonical names.
type params struct {
	body    sdk.MessageNewParams
	nameMap map[string]string
}

// PrepareInput projects ModelInput into an Anthropic MessageNewParams.
func (a *Adapter) PrepareInput(_ context.Context, in engine.ModelInput) (engine.ProviderInput, error) {
	if len(in.Messages) == 0 {
		return nil, errors.New("anthropicadapter: at least one message is required")
	}
	tools, nameMap, err := encodeTools(in.Tools)
	if err != nil {
		return nil, err
	}
	msgs, system, err := encodeMessages(in.Messages)
	if err != nil {
		return nil, err
	}
	body := sdk.MessageNewParams{
		Model:     sdk.Model(a.opts.Model),
		MaxTokens: int64(a.opts.MaxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		body.System = system
	}
	if len(tools) > 0 {
		body.Tools = tools
	}
	if a.opts.Temperature > 0 {
		body.Temperature = sdk.Float(a.opts.Temperature)
	}
	return params{body: body, nameMap: nameMap}, nil
}

// Execute issues a non-streaming Messages.New call.
func (a *Adapter) Execute(ctx context.Context, in engine.ProviderInput) (engine.ProviderOutput, error) {
	p, ok := in.(params)
	if !ok {
		return nil, fmt.Errorf("anthropicadapter: unexpected input type %T", in)
	}
	msg, err := a.msg.New(ctx, p.body)
	if err != nil {
		return nil, fmt.Errorf("anthropicadapter: messages.new: %w", err)
	}
	return providerResponse{msg: msg, nameMap: p.nameMap}, nil
}

// ExecuteStream issues a streaming Messages.New call. Anthropic's SSE
// events address content blocks by index rather than by the tool call id
// the accumulator keys on, so the per-index bookkeeping (mirroring the
// teacher's chunk processor) lives here, scoped to this one stream's
// goroutine, and each sink call already carries a resolved *AdapterDelta.
func (a *Adapter) ExecuteStream(ctx context.Context, in engine.ProviderInput, sink func(engine.ProviderChunk) error) error {
	p, ok := in.(params)
	if !ok {
		return fmt.Errorf("anthropicadapter: unexpected input type %T", in)
	}
	st := a.msg.NewStreaming(ctx, p.body)
	if err := st.Err(); err != nil {
		return fmt.Errorf("anthropicadapter: messages.new stream: %w", err)
	}
	defer st.Close()

	toolIDs := make(map[int64]string)
	for st.Next() {
		deltas, err := mapStreamEvent(st.Current(), p.nameMap, toolIDs)
		if err != nil {
			return err
		}
		for _, d := range deltas {
			if err := sink(providerChunk{delta: d}); err != nil {
				return err
			}
		}
	}
	return st.Err()
}

// SupportsStreaming always returns true for this adapter.
func (a *Adapter) SupportsStreaming() bool { return true }

// providerChunk wraps an already-resolved delta; resolution happens in
// ExecuteStream where the per-stream block-index state lives.
type providerChunk struct {
	delta *stream.AdapterDelta
}

type providerResponse struct {
	msg     *sdk.Message
	nameMap map[string]string
}

// MapChunk normalizes one provider chunk into the accumulator's alphabet.
func (a *Adapter) MapChunk(chunk engine.ProviderChunk) (*stream.AdapterDelta, error) {
	switch c := chunk.(type) {
	case providerChunk:
		return c.delta, nil
	case providerResponse:
		return mapFullResponse(c.msg, c.nameMap)
	default:
		return nil, fmt.Errorf("anthropicadapter: unexpected chunk type %T", chunk)
	}
}

func mapStreamEvent(event sdk.MessageStreamEventUnion, nameMap map[string]string, toolIDs map[int64]string) ([]*stream.AdapterDelta, error) {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		return []*stream.AdapterDelta{{Kind: stream.DeltaMessageStart, ModelID: string(ev.Message.Model)}}, nil
	case sdk.ContentBlockStartEvent:
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			if toolUse.ID == "" || toolUse.Name == "" {
				return nil, fmt.Errorf("anthropicadapter: tool_use block missing id or name")
			}
			toolIDs[ev.Index] = toolUse.ID
			return []*stream.AdapterDelta{{
				Kind:         stream.DeltaToolCallStart,
				ToolCallID:   toolUse.ID,
				ToolCallName: resolveName(toolUse.Name, nameMap),
			}}, nil
		}
		return nil, nil
	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil, nil
			}
			return []*stream.AdapterDelta{{Kind: stream.DeltaText, Text: delta.Text}}, nil
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil, nil
			}
			return []*stream.AdapterDelta{{Kind: stream.DeltaReasoning, Text: delta.Thinking}}, nil
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil, nil
			}
			id, ok := toolIDs[ev.Index]
			if !ok {
				return nil, fmt.Errorf("anthropicadapter: input_json_delta for unknown block index %d", ev.Index)
			}
			return []*stream.AdapterDelta{{Kind: stream.DeltaToolCallDelta, ToolCallID: id, ToolCallDelta: delta.PartialJSON}}, nil
		}
		return nil, nil
	case sdk.ContentBlockStopEvent:
		if id, ok := toolIDs[ev.Index]; ok {
			delete(toolIDs, ev.Index)
			return []*stream.AdapterDelta{{Kind: stream.DeltaToolCallEnd, ToolCallID: id}}, nil
		}
		return nil, nil
	case sdk.MessageDeltaEvent:
		return []*stream.AdapterDelta{{
			Kind:       stream.DeltaUsage,
			Usage:      stream.Usage{InputTokens: int(ev.Usage.InputTokens), OutputTokens: int(ev.Usage.OutputTokens)},
			StopReason: string(ev.Delta.StopReason),
		}}, nil
	case sdk.MessageStopEvent:
		return []*stream.AdapterDelta{{Kind: stream.DeltaMessageEnd}}, nil
	default:
		return nil, nil
	}
}

func resolveName(sanitized string, nameMap map[string]string) string {
	if canonical, ok := nameMap[sanitized]; ok {
		return canonical
	}
	return sanitized
}

// mapFullResponse collapses a non-streaming Message into a single delta.
// The accumulator's non-streamed alphabet has no way to carry both text
// and tool_use blocks in one AdapterDelta, so a response with tool calls
// is rejected here in favor of ExecuteStream, which this adapter always
// advertises support for.
func mapFullResponse(msg *sdk.Message, nameMap map[string]string) (*stream.AdapterDelta, error) {
	if msg == nil {
		return nil, errors.New("anthropicadapter: response message is nil")
	}
	var text string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			return nil, fmt.Errorf("anthropicadapter: non-streaming response contains tool_use %q; use ExecuteStream instead", resolveName(block.Name, nameMap))
		}
	}
	return &stream.AdapterDelta{Kind: stream.DeltaText, Text: text}, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam

	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
			continue
		}
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case model.ToolUsePart:
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Input, v.Name))
			case model.ToolResultPart:
				blocks = append(blocks, encodeToolResult(v))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropicadapter: unsupported role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropicadapter: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeToolResult(v model.ToolResultPart) sdk.ContentBlockParamUnion {
	var content string
	if len(v.Content) > 0 {
		if text, ok := v.Content[0].(model.TextPart); ok {
			content = text.Text
		} else if data, err := json.Marshal(v.Content); err == nil {
			content = string(data)
		}
	}
	return sdk.NewToolResultBlock(v.ToolUseID, content, !v.Success)
}

func encodeTools(defs []engine.ToolDefinition) ([]sdk.ToolUnionParam, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	nameMap := make(map[string]string, len(defs))
	for _, def := range defs {
		var extra map[string]any
		if def.ParameterSchema != nil {
			extra = def.ParameterSchema
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: extra}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
		nameMap[def.Name] = def.Name
	}
	return tools, nameMap, nil
}

// Package openaiadapter implements engine.Adapter on top of the Chat
// Completions API via github.com/openai/openai-go. Structured the same
// way as providers/anthropicadapter: PrepareInput/Execute/ExecuteStream/
// MapChunk translate between this module's provider-independent shapes
// and one provider SDK's wire format, and no core package imports it.
package openaiadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/agentrt/core/engine"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
)

// ChatClient is the subset of the openai-go Chat Completions surface the
// adapter depends on, so tests can substitute a fake.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Options configures default model selection and generation parameters.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Adapter implements engine.Adapter against the OpenAI Chat Completions API.
type Adapter struct {
	chat ChatClient
	opts Options
}

// New builds an Adapter from a Chat Completions client and options.
func New(chat ChatClient, opts Options) (*Adapter, error) {
	if chat == nil {
		return nil, errors.New("openaiadapter: chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openaiadapter: model is required")
	}
	return &Adapter{chat: chat, opts: opts}, nil
}

// NewFromAPIKey constructs an Adapter using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, modelID string) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("openaiadapter: api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Chat.Completions, Options{Model: modelID})
}

// params is the ProviderInput this adapter produces: a fully-built
// ChatCompletionNewParams plus the tool-name map (identity here, but kept
// for symmetry with anthropicadapter and to absorb a future sanitization
// step without changing the Adapter contract).
type params struct {
	body    openai.ChatCompletionNewParams
	nameMap map[string]string
}

// PrepareInput projects ModelInput into an OpenAI ChatCompletionNewParams.
func (a *Adapter) PrepareInput(_ context.Context, in engine.ModelInput) (engine.ProviderInput, error) {
	if len(in.Messages) == 0 {
		return nil, errors.New("openaiadapter: at least one message is required")
	}
	msgs, err := encodeMessages(in.Messages)
	if err != nil {
		return nil, err
	}
	tools, nameMap := encodeTools(in.Tools)
	body := openai.ChatCompletionNewParams{
		Model:    a.opts.Model,
		Messages: msgs,
	}
	if len(tools) > 0 {
		body.Tools = tools
	}
	if a.opts.MaxTokens > 0 {
		body.MaxTokens = openai.Int(int64(a.opts.MaxTokens))
	}
	if a.opts.Temperature > 0 {
		body.Temperature = openai.Float(a.opts.Temperature)
	}
	return params{body: body, nameMap: nameMap}, nil
}

// Execute issues a non-streaming Chat Completions call.
func (a *Adapter) Execute(ctx context.Context, in engine.ProviderInput) (engine.ProviderOutput, error) {
	p, ok := in.(params)
	if !ok {
		return nil, fmt.Errorf("openaiadapter: unexpected input type %T", in)
	}
	resp, err := a.chat.New(ctx, p.body)
	if err != nil {
		return nil, fmt.Errorf("openaiadapter: chat.completions.new: %w", err)
	}
	return providerResponse{resp: resp, nameMap: p.nameMap}, nil
}

// ExecuteStream issues a streaming Chat Completions call. OpenAI indexes
// tool call deltas by position within the single choice rather than by
// the accumulator's tool_call_id, so (mirroring anthropicadapter) the
// per-index bookkeeping lives here, scoped to this one stream.
func (a *Adapter) ExecuteStream(ctx context.Context, in engine.ProviderInput, sink func(engine.ProviderChunk) error) error {
	p, ok := in.(params)
	if !ok {
		return fmt.Errorf("openaiadapter: unexpected input type %T", in)
	}
	st := a.chat.NewStreaming(ctx, p.body)
	if err := st.Err(); err != nil {
		return fmt.Errorf("openaiadapter: chat.completions.new stream: %w", err)
	}
	defer st.Close()

	toolIDs := make(map[int64]string)
	started := false
	for st.Next() {
		deltas := mapChunkEvent(st.Current(), toolIDs, &started)
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

type providerChunk struct {
	delta *stream.AdapterDelta
}

type providerResponse struct {
	resp    *openai.ChatCompletion
	nameMap map[string]string
}

// MapChunk normalizes one provider chunk into the accumulator's alphabet.
func (a *Adapter) MapChunk(chunk engine.ProviderChunk) (*stream.AdapterDelta, error) {
	switch c := chunk.(type) {
	case providerChunk:
		return c.delta, nil
	case providerResponse:
		return mapFullResponse(c.resp)
	default:
		return nil, fmt.Errorf("openaiadapter: unexpected chunk type %T", chunk)
	}
}

func mapChunkEvent(chunk openai.ChatCompletionChunk, toolIDs map[int64]string, started *bool) []*stream.AdapterDelta {
	var out []*stream.AdapterDelta
	if !*started {
		*started = true
		out = append(out, &stream.AdapterDelta{Kind: stream.DeltaMessageStart, ModelID: chunk.Model})
	}
	if len(chunk.Choices) == 0 {
		return out
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		out = append(out, &stream.AdapterDelta{Kind: stream.DeltaText, Text: choice.Delta.Content})
	}
	for _, tc := range choice.Delta.ToolCalls {
		idx := tc.Index
		id, known := toolIDs[idx]
		if !known {
			if tc.ID == "" || tc.Function.Name == "" {
				continue
			}
			toolIDs[idx] = tc.ID
			out = append(out, &stream.AdapterDelta{
				Kind:         stream.DeltaToolCallStart,
				ToolCallID:   tc.ID,
				ToolCallName: tc.Function.Name,
			})
			id = tc.ID
		}
		if tc.Function.Arguments != "" {
			out = append(out, &stream.AdapterDelta{Kind: stream.DeltaToolCallDelta, ToolCallID: id, ToolCallDelta: tc.Function.Arguments})
		}
	}
	if choice.FinishReason != "" {
		for idx, id := range toolIDs {
			out = append(out, &stream.AdapterDelta{Kind: stream.DeltaToolCallEnd, ToolCallID: id})
			delete(toolIDs, idx)
		}
		out = append(out, &stream.AdapterDelta{
			Kind:       stream.DeltaUsage,
			Usage:      stream.Usage{InputTokens: int(chunk.Usage.PromptTokens), OutputTokens: int(chunk.Usage.CompletionTokens)},
			StopReason: choice.FinishReason,
		})
		out = append(out, &stream.AdapterDelta{Kind: stream.DeltaMessageEnd, StopReason: choice.FinishReason, ModelID: chunk.Model})
	}
	return out
}

// mapFullResponse collapses a non-streaming ChatCompletion into a single
// delta. As with anthropicadapter, a response carrying tool calls is
// rejected in favor of ExecuteStream, which this adapter always supports.
func mapFullResponse(resp *openai.ChatCompletion) (*stream.AdapterDelta, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openaiadapter: response has no choices")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return nil, fmt.Errorf("openaiadapter: non-streaming response contains tool calls; use ExecuteStream instead")
	}
	return &stream.AdapterDelta{Kind: stream.DeltaText, Text: msg.Content}, nil
}

func encodeMessages(msgs []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if text := m.Text(); text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case model.RoleUser:
			if text := m.Text(); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Text()))
		case model.RoleTool:
			for _, part := range m.Parts {
				if tr, ok := part.(model.ToolResultPart); ok {
					out = append(out, openai.ToolMessage(toolResultText(tr), tr.ToolUseID))
				}
			}
		default:
			return nil, fmt.Errorf("openaiadapter: unsupported role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openaiadapter: at least one encodable message is required")
	}
	return out, nil
}

func toolResultText(tr model.ToolResultPart) string {
	if len(tr.Content) == 0 {
		return ""
	}
	if text, ok := tr.Content[0].(model.TextPart); ok {
		return text.Text
	}
	data, err := json.Marshal(tr.Content)
	if err != nil {
		return ""
	}
	return string(data)
}

func encodeTools(defs []engine.ToolDefinition) ([]openai.ChatCompletionToolParam, map[string]string) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	nameMap := make(map[string]string, len(defs))
	for _, def := range defs {
		params := openai.FunctionParameters{}
		if def.ParameterSchema != nil {
			params = openai.FunctionParameters(def.ParameterSchema)
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  params,
			},
		})
		nameMap[def.Name] = def.Name
	}
	return tools, nameMap
}

// Package bedrockadapter implements engine.Adapter on top of the AWS
// Bedrock Converse/ConverseStream API. Structured like
// providers/anthropicadapter and providers/openaiadapter: PrepareInput/
// Execute/ExecuteStream/MapChunk translate between this module's
// provider-independent shapes and Bedrock's wire format, and no core
// package imports it.
//
// Scope is deliberately narrower than Bedrock's full Converse surface:
// text, tool_use, and usage are translated; reasoning content, citations,
// documents, and cache points are not. A caller that needs those can add
// them the same way text and tool_use are handled below.
package bedrockadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentrt/core/engine"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
)

// StreamOutput is the subset of the AWS ConverseStream output type the
// adapter depends on. It is satisfied by *bedrockruntime.ConverseStreamOutput
// and lets tests substitute a fake event stream.
type StreamOutput interface {
	GetStream() *bedrockruntime.ConverseStreamEventStream
}

// RuntimeClient is the subset of the AWS Bedrock runtime client the
// adapter depends on, so tests can substitute a fake. Use NewFromClient
// to build an Adapter directly from a *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (StreamOutput, error)
}

// realRuntimeClient adapts *bedrockruntime.Client to RuntimeClient; the SDK
// method returns the concrete *bedrockruntime.ConverseStreamOutput, which
// already satisfies StreamOutput.
type realRuntimeClient struct {
	client *bedrockruntime.Client
}

func (r realRuntimeClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return r.client.Converse(ctx, params, optFns...)
}

func (r realRuntimeClient) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (StreamOutput, error) {
	return r.client.ConverseStream(ctx, params, optFns...)
}

// NewFromClient builds an Adapter directly from an AWS SDK Bedrock runtime
// client.
func NewFromClient(client *bedrockruntime.Client, opts Options) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("bedrockadapter: runtime client is required")
	}
	return New(realRuntimeClient{client: client}, opts)
}

// Options configures default model selection and generation parameters.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Adapter implements engine.Adapter against AWS Bedrock Converse.
type Adapter struct {
	runtime RuntimeClient
	opts    Options
}

// New builds an Adapter from a Bedrock runtime client and options.
func New(runtime RuntimeClient, opts Options) (*Adapter, error) {
	if runtime == nil {
		return nil, errors.New("bedrockadapter: runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("bedrockadapter: model is required")
	}
	return &Adapter{runtime: runtime, opts: opts}, nil
}

// params is the ProviderInput this adapter produces.
type params struct {
	modelID    string
	messages   []brtypes.Message
	system     []brtypes.SystemContentBlock
	toolConfig *brtypes.ToolConfiguration
	nameMap    map[string]string
}

// PrepareInput projects ModelInput into Bedrock Converse message shapes.
func (a *Adapter) PrepareInput(_ context.Context, in engine.ModelInput) (engine.ProviderInput, error) {
	if len(in.Messages) == 0 {
		return nil, errors.New("bedrockadapter: at least one message is required")
	}
	messages, system, err := encodeMessages(in.Messages)
	if err != nil {
		return nil, err
	}
	toolConfig, nameMap, err := encodeTools(in.Tools)
	if err != nil {
		return nil, err
	}
	return params{
		modelID:    a.opts.Model,
		messages:   messages,
		system:     system,
		toolConfig: toolConfig,
		nameMap:    nameMap,
	}, nil
}

// Execute issues a non-streaming Converse call.
func (a *Adapter) Execute(ctx context.Context, in engine.ProviderInput) (engine.ProviderOutput, error) {
	p, ok := in.(params)
	if !ok {
		return nil, fmt.Errorf("bedrockadapter: unexpected input type %T", in)
	}
	out, err := a.runtime.Converse(ctx, a.converseInput(p))
	if err != nil {
		return nil, fmt.Errorf("bedrockadapter: converse: %w", err)
	}
	return providerResponse{out: out, nameMap: p.nameMap}, nil
}

// ExecuteStream issues a streaming ConverseStream call. Bedrock addresses
// tool use deltas by ContentBlockIndex rather than the accumulator's
// tool_call_id, so (mirroring anthropicadapter/openaiadapter) the
// per-index bookkeeping lives here, scoped to this one stream.
func (a *Adapter) ExecuteStream(ctx context.Context, in engine.ProviderInput, sink func(engine.ProviderChunk) error) error {
	p, ok := in.(params)
	if !ok {
		return fmt.Errorf("bedrockadapter: unexpected input type %T", in)
	}
	out, err := a.runtime.ConverseStream(ctx, a.converseStreamInput(p))
	if err != nil {
		return fmt.Errorf("bedrockadapter: converse_stream: %w", err)
	}
	es := out.GetStream()
	if es == nil {
		return errors.New("bedrockadapter: converse_stream returned no event stream")
	}
	defer es.Close()

	toolIDs := make(map[int32]string)
	toolNames := make(map[int32]string)
	events := es.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return es.Err()
			}
			deltas, err := mapStreamEvent(event, p.nameMap, toolIDs, toolNames)
			if err != nil {
				return err
			}
			for _, d := range deltas {
				if err := sink(providerChunk{delta: d}); err != nil {
					return err
				}
			}
		}
	}
}

// SupportsStreaming always returns true for this adapter.
func (a *Adapter) SupportsStreaming() bool { return true }

func (a *Adapter) converseInput(p params) *bedrockruntime.ConverseInput {
	in := &bedrockruntime.ConverseInput{
		ModelId:    &p.modelID,
		Messages:   p.messages,
		System:     p.system,
		ToolConfig: p.toolConfig,
	}
	if cfg := a.inferenceConfig(); cfg != nil {
		in.InferenceConfig = cfg
	}
	return in
}

func (a *Adapter) converseStreamInput(p params) *bedrockruntime.ConverseStreamInput {
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:    &p.modelID,
		Messages:   p.messages,
		System:     p.system,
		ToolConfig: p.toolConfig,
	}
	if cfg := a.inferenceConfig(); cfg != nil {
		in.InferenceConfig = cfg
	}
	return in
}

func (a *Adapter) inferenceConfig() *brtypes.InferenceConfiguration {
	if a.opts.MaxTokens <= 0 && a.opts.Temperature <= 0 {
		return nil
	}
	cfg := &brtypes.InferenceConfiguration{}
	if a.opts.MaxTokens > 0 {
		v := int32(a.opts.MaxTokens)
		cfg.MaxTokens = &v
	}
	if a.opts.Temperature > 0 {
		v := a.opts.Temperature
		cfg.Temperature = &v
	}
	return cfg
}

type providerChunk struct {
	delta *stream.AdapterDelta
}

type providerResponse struct {
	out     *bedrockruntime.ConverseOutput
	nameMap map[string]string
}

// MapChunk normalizes one provider chunk into the accumulator's alphabet.
func (a *Adapter) MapChunk(chunk engine.ProviderChunk) (*stream.AdapterDelta, error) {
	switch c := chunk.(type) {
	case providerChunk:
		return c.delta, nil
	case providerResponse:
		return mapFullResponse(c.out, c.nameMap)
	default:
		return nil, fmt.Errorf("bedrockadapter: unexpected chunk type %T", chunk)
	}
}

func mapStreamEvent(event brtypes.ConverseStreamOutput, nameMap map[string]string, toolIDs, toolNames map[int32]string) ([]*stream.AdapterDelta, error) {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberMessageStart:
		return []*stream.AdapterDelta{{Kind: stream.DeltaMessageStart}}, nil

	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := ev.Value.ContentBlockIndex
		if idx == nil {
			return nil, errors.New("bedrockadapter: content_block_start missing content block index")
		}
		toolUse, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse)
		if !ok {
			return nil, nil
		}
		if toolUse.Value.ToolUseId == nil || *toolUse.Value.ToolUseId == "" {
			return nil, errors.New("bedrockadapter: tool_use block missing tool_use_id")
		}
		if toolUse.Value.Name == nil || *toolUse.Value.Name == "" {
			return nil, fmt.Errorf("bedrockadapter: tool_use block %q missing name", *toolUse.Value.ToolUseId)
		}
		id := *toolUse.Value.ToolUseId
		name := resolveName(*toolUse.Value.Name, nameMap)
		toolIDs[*idx] = id
		toolNames[*idx] = name
		return []*stream.AdapterDelta{{Kind: stream.DeltaToolCallStart, ToolCallID: id, ToolCallName: name}}, nil

	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := ev.Value.ContentBlockIndex
		if idx == nil {
			return nil, errors.New("bedrockadapter: content_block_delta missing content block index")
		}
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return nil, nil
			}
			return []*stream.AdapterDelta{{Kind: stream.DeltaText, Text: delta.Value}}, nil
		case *brtypes.ContentBlockDeltaMemberToolUse:
			if delta.Value.Input == nil {
				return nil, nil
			}
			id, ok := toolIDs[*idx]
			if !ok {
				return nil, fmt.Errorf("bedrockadapter: tool_use delta for unknown block index %d", *idx)
			}
			return []*stream.AdapterDelta{{Kind: stream.DeltaToolCallDelta, ToolCallID: id, ToolCallDelta: *delta.Value.Input}}, nil
		default:
			return nil, nil
		}

	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := ev.Value.ContentBlockIndex
		if idx == nil {
			return nil, errors.New("bedrockadapter: content_block_stop missing content block index")
		}
		id, ok := toolIDs[*idx]
		if !ok {
			return nil, nil
		}
		delete(toolIDs, *idx)
		delete(toolNames, *idx)
		return []*stream.AdapterDelta{{Kind: stream.DeltaToolCallEnd, ToolCallID: id}}, nil

	case *brtypes.ConverseStreamOutputMemberMessageStop:
		d := &stream.AdapterDelta{Kind: stream.DeltaMessageEnd}
		if ev.Value.StopReason != "" {
			d.StopReason = string(ev.Value.StopReason)
		}
		return []*stream.AdapterDelta{d}, nil

	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return nil, nil
		}
		u := ev.Value.Usage
		usage := stream.Usage{}
		if u.InputTokens != nil {
			usage.InputTokens = int(*u.InputTokens)
		}
		if u.OutputTokens != nil {
			usage.OutputTokens = int(*u.OutputTokens)
		}
		if u.TotalTokens != nil {
			usage.TotalTokens = int(*u.TotalTokens)
		}
		return []*stream.AdapterDelta{{Kind: stream.DeltaUsage, Usage: usage}}, nil

	default:
		return nil, nil
	}
}

// mapFullResponse collapses a non-streaming ConverseOutput into a single
// delta. As with the other adapters, a response carrying tool_use blocks
// is rejected in favor of ExecuteStream, which this adapter always
// supports.
func mapFullResponse(out *bedrockruntime.ConverseOutput, nameMap map[string]string) (*stream.AdapterDelta, error) {
	if out == nil || out.Output == nil {
		return nil, errors.New("bedrockadapter: response has no output")
	}
	member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrockadapter: response output is not a message")
	}
	var text string
	for _, block := range member.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			text += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			name := ""
			if b.Value.Name != nil {
				name = resolveName(*b.Value.Name, nameMap)
			}
			return nil, fmt.Errorf("bedrockadapter: non-streaming response contains tool_use %q; use ExecuteStream instead", name)
		}
	}
	return &stream.AdapterDelta{Kind: stream.DeltaText, Text: text}, nil
}

func resolveName(name string, nameMap map[string]string) string {
	if canonical, ok := nameMap[name]; ok {
		return canonical
	}
	return name
}

func encodeMessages(msgs []model.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	conversation := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
			}
			continue
		}
		role, err := encodeRole(m.Role)
		if err != nil {
			return nil, nil, err
		}
		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch p := part.(type) {
			case model.TextPart:
				if p.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: p.Text})
				}
			case model.ToolUsePart:
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: &p.ID,
					Name:      &p.Name,
					Input:     lazyDocument(p.Input),
				}})
			case model.ToolResultPart:
				content, err := encodeToolResultContent(p)
				if err != nil {
					return nil, nil, err
				}
				status := brtypes.ToolResultStatusSuccess
				if !p.Success {
					status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: &p.ToolUseID,
					Content:   content,
					Status:    status,
				}})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrockadapter: at least one conversational message is required")
	}
	return conversation, system, nil
}

func encodeRole(role model.Role) (brtypes.ConversationRole, error) {
	switch role {
	case model.RoleUser, model.RoleTool:
		return brtypes.ConversationRoleUser, nil
	case model.RoleAssistant:
		return brtypes.ConversationRoleAssistant, nil
	default:
		return "", fmt.Errorf("bedrockadapter: unsupported role %q", role)
	}
}

func encodeToolResultContent(tr model.ToolResultPart) ([]brtypes.ToolResultContentBlock, error) {
	out := make([]brtypes.ToolResultContentBlock, 0, len(tr.Content))
	for _, part := range tr.Content {
		if text, ok := part.(model.TextPart); ok {
			out = append(out, &brtypes.ToolResultContentBlockMemberText{Value: text.Text})
			continue
		}
		data, err := json.Marshal(part)
		if err != nil {
			return nil, fmt.Errorf("bedrockadapter: encode tool result content: %w", err)
		}
		out = append(out, &brtypes.ToolResultContentBlockMemberText{Value: string(data)})
	}
	return out, nil
}

func encodeTools(defs []engine.ToolDefinition) (*brtypes.ToolConfiguration, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	nameMap := make(map[string]string, len(defs))
	for _, def := range defs {
		spec := brtypes.ToolSpecification{
			Name:        &def.Name,
			Description: &def.Description,
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: lazyDocument(def.ParameterSchema)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
		nameMap[def.Name] = def.Name
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, nameMap, nil
}

func lazyDocument(v any) document.Interface {
	if v == nil {
		v = map[string]any{}
	}
	return document.NewLazyDocument(v)
}

// Package engine implements the tick-driven execution loop: per-tick
// compilation, model invocation via a provider adapter, tool dispatch,
// continuation-policy resolution, and the lifecycle event stream that
// callers subscribe to.
package engine

import (
	"context"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
)

// ModelInput is what an Adapter receives: the compiled structure
// projected into the shape a model call needs.
type ModelInput struct {
	Messages []model.Message
	Tools    []ToolDefinition
	Sections []*com.Section
	Metadata map[string]any
}

// ToolDefinition is the model-facing projection of a registered tool:
// name, description, a JSON Schema for its parameters, intent, and any
// provider-specific passthrough options.
type ToolDefinition struct {
	Name            string
	Description     string
	ParameterSchema map[string]any
	Intent          com.Intent
	ProviderOptions map[string]any
}

// ModelOutput is the accumulator's final assembled message, handed back
// to the engine for timeline append.
type ModelOutput = stream.Output

// EngineResponse is what toEngineState derives from a ModelOutput: the
// pieces the tick loop needs to decide whether to continue.
type EngineResponse struct {
	Message        model.Message
	HadToolCalls   bool
	StopReason     string
}

// ProviderChunk is an opaque, adapter-specific streamed unit from the
// underlying provider SDK. Adapters alone know how to interpret it.
type ProviderChunk any

// ProviderInput is an opaque, adapter-specific request payload.
type ProviderInput any

// ProviderOutput is an opaque, adapter-specific non-streaming response.
type ProviderOutput any

// Adapter bridges one model provider's wire format to the accumulator's
// provider-independent AdapterDelta alphabet. Implementations live
// outside this module's core packages (see providers/) so the core
// itself never depends on a specific provider SDK.
type Adapter interface {
	// PrepareInput projects ModelInput into the provider's request shape.
	PrepareInput(ctx context.Context, in ModelInput) (ProviderInput, error)

	// ExecuteStream invokes the provider in streaming mode, pushing each
	// chunk to the supplied sink until the stream ends or ctx is done.
	ExecuteStream(ctx context.Context, in ProviderInput, sink func(ProviderChunk) error) error

	// Execute invokes the provider in non-streaming mode. Adapters that
	// only support streaming may synthesize this from ExecuteStream.
	Execute(ctx context.Context, in ProviderInput) (ProviderOutput, error)

	// MapChunk normalizes one provider chunk into the accumulator's
	// alphabet, or returns nil if the chunk carries no accumulator event
	// (e.g. a provider-internal keepalive).
	MapChunk(chunk ProviderChunk) (*stream.AdapterDelta, error)

	// SupportsStreaming reports whether ExecuteStream should be used.
	SupportsStreaming() bool
}

// FromEngineState projects a compiled COM input into a ModelInput. The
// default mapping keeps role and content as-is (in.Tools is already
// filtered to audience=model by CompiledStructure.ToInput) and flattens
// the timeline to its message entries plus one tool-role message per
// tool_result entry. tool_use entries are skipped: the accumulator already
// carries them as ToolUseParts of their owning assistant message.
func FromEngineState(in com.Input) ModelInput {
	tools := make([]ToolDefinition, 0, len(in.Tools))
	for _, t := range in.Tools {
		tools = append(tools, ToolDefinition{
			Name:            t.Name,
			Description:     t.Description,
			ParameterSchema: t.ParameterSchema,
			Intent:          t.Intent,
			ProviderOptions: t.ProviderOptions,
		})
	}
	var messages []model.Message
	for _, entry := range in.Timeline {
		switch {
		case entry.Kind == com.EntryMessage && entry.Message != nil:
			messages = append(messages, *entry.Message)
		case entry.Kind == com.EntryToolResult && entry.ToolResult != nil:
			tr := entry.ToolResult
			messages = append(messages, model.Message{
				Role: model.RoleTool,
				Parts: []model.Part{model.ToolResultPart{
					ToolUseID: tr.ToolUseID,
					Success:   tr.Success,
					Content:   tr.Content,
					ErrorKind: tr.ErrorKind,
				}},
			})
		}
	}
	return ModelInput{
		Messages: messages,
		Tools:    tools,
		Sections: in.Sections,
		Metadata: in.Metadata,
	}
}

// ToEngineState projects an accumulator Output into an EngineResponse.
func ToEngineState(out stream.Output) EngineResponse {
	return EngineResponse{
		Message:      out.Message,
		HadToolCalls: len(out.ToolCalls) > 0,
		StopReason:   out.StopReason,
	}
}

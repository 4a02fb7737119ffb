package com

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/core/model"
)

// ExecutionKind selects how the tool executor routes a resolved tool call.
type ExecutionKind string

const (
	ExecutionServer   ExecutionKind = "server"
	ExecutionClient   ExecutionKind = "client"
	ExecutionProvider ExecutionKind = "provider"
	ExecutionMCP      ExecutionKind = "mcp"
	// ExecutionAgent starts a child COM+engine pair scoped to the tool call
	// and bridges its final assistant message back as the tool result.
	ExecutionAgent ExecutionKind = "agent"
)

// Intent classifies a tool's effect for UI and policy purposes.
type Intent string

const (
	IntentRender  Intent = "render"
	IntentAction  Intent = "action"
	IntentCompute Intent = "compute"
)

// ConfirmationPolicy decides whether a tool call must be confirmed by the
// client surface before it executes. Always, when true, requires
// confirmation unconditionally; Predicate, when set, is consulted with the
// call's decoded input.
type ConfirmationPolicy struct {
	Always    bool
	Predicate func(input map[string]any) bool
}

// Required reports whether input requires confirmation under this policy.
func (p ConfirmationPolicy) Required(input map[string]any) bool {
	if p.Always {
		return true
	}
	if p.Predicate != nil {
		return p.Predicate(input)
	}
	return false
}

// HandlerResult is what a SERVER (or AGENT) tool handler returns on
// success; the executor wraps it into a result value with success=true.
// Handlers signal failure through the returned error instead of a zero
// HandlerResult, so errors can be classified by the executor's error-kind
// mapping.
type HandlerResult struct {
	Content []model.Part
}

// ToolHandler implements a SERVER or AGENT tool. deps is the owning COM,
// giving the handler access to session state and the timeline; additional
// render-time-injected dependencies are expected to be retrieved from COM
// state under a tool-specific key.
type ToolHandler func(ctx context.Context, input map[string]any, deps *COM) (HandlerResult, error)

// DefaultResult is returned immediately for a CLIENT tool whose
// RequiresResponse is false.
type DefaultResult struct {
	Content []model.Part
	Success bool
}

// ToolSpec is a tool's registered metadata.
type ToolSpec struct {
	Name            string
	Description     string
	ParameterSchema map[string]any
	ExecutionKind   ExecutionKind
	Intent          Intent
	Audience        model.Audience
	Aliases         []string
	Confirmation    ConfirmationPolicy
	Timeout         time.Duration

	// Handler is consulted for ExecutionServer and ExecutionAgent tools.
	Handler ToolHandler

	// RequiresResponse applies to ExecutionClient tools: when false,
	// DefaultResult is returned immediately without a client round trip.
	RequiresResponse bool
	DefaultResult    *DefaultResult

	// MCPServer names the configured MCP server this tool delegates to,
	// for ExecutionMCP tools.
	MCPServer string

	// AgentID names the child agent definition to spawn, for
	// ExecutionAgent tools.
	AgentID string

	ProviderOptions map[string]any

	// MutexGroup tools in the same non-empty group never execute
	// concurrently within one batch.
	MutexGroup string
}

// ToolRegistrationConflict is raised by RegisterTool when a tool name is
// already registered.
type ToolRegistrationConflict struct {
	Name string
}

func (e *ToolRegistrationConflict) Error() string {
	return fmt.Sprintf("com: tool %q is already registered", e.Name)
}

// RegisterTool adds spec to the tool registry. A duplicate name is a hard
// error; aliases register into a separate index on a first-wins basis, so a
// colliding alias is silently dropped in favor of the first registrant.
func (c *COM) RegisterTool(spec *ToolSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[spec.Name]; exists {
		return &ToolRegistrationConflict{Name: spec.Name}
	}
	c.tools[spec.Name] = spec
	for _, alias := range spec.Aliases {
		if _, taken := c.aliases[alias]; !taken {
			c.aliases[alias] = spec.Name
		}
	}
	return nil
}

// GetTool looks up a tool by its registered name, including audience=user
// tools.
func (c *COM) GetTool(name string) (*ToolSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tools[name]
	return t, ok
}

// GetToolByAlias resolves an alias to its registered tool.
func (c *COM) GetToolByAlias(alias string) (*ToolSpec, bool) {
	c.mu.Lock()
	name, ok := c.aliases[alias]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.GetTool(name)
}

// Tools returns every registered tool, in no particular order.
func (c *COM) Tools() []*ToolSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ToolSpec, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// ModelTools returns tools visible to the model (audience includes
// AudienceModel), for inclusion in model input.
func (c *COM) ModelTools() []*ToolSpec {
	var out []*ToolSpec
	for _, t := range c.Tools() {
		if t.Audience.Visible(model.AudienceModel) {
			out = append(out, t)
		}
	}
	return out
}

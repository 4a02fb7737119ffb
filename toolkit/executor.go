// Package toolkit implements the Tool Executor: resolution, schema
// validation, confirmation gating, execution-kind routing (SERVER/CLIENT/
// PROVIDER/MCP/AGENT), middleware composition, and the non-throwing
// error→result mapping every tool call produces instead of ever raising out
// of the executor.
package toolkit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/telemetry"
)

const defaultConfirmationTimeout = 30 * time.Second
const defaultToolTimeout = 60 * time.Second

// Middleware wraps a tool handler, composed in onion order: the first
// Middleware passed to New is outermost.
type Middleware func(com.ToolHandler) com.ToolHandler

// Executor resolves, validates, confirms, and routes tool calls.
type Executor struct {
	logger  telemetry.Logger
	tracer  telemetry.Tracer
	metrics telemetry.Metrics

	schemas *schemaCache
	broker  FutureBroker
	mcp     MCPClient
	limiter *rate.Limiter

	middleware []Middleware

	agentRunner AgentRunner
}

// AgentRunner starts a child agent run scoped to one ExecutionAgent tool
// call and returns its bridged-back result content. Supplying nil disables
// the AGENT execution kind (calls to such tools fail with
// TOOL_NO_HANDLER).
type AgentRunner func(ctx context.Context, agentID string, input map[string]any) ([]model.Part, error)

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithLogger(l telemetry.Logger) Option   { return func(e *Executor) { e.logger = l } }
func WithTracer(t telemetry.Tracer) Option   { return func(e *Executor) { e.tracer = t } }
func WithMetrics(m telemetry.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithFutureBroker overrides the default in-memory FutureBroker, e.g. with
// a Redis-backed one for a multi-process deployment.
func WithFutureBroker(b FutureBroker) Option { return func(e *Executor) { e.broker = b } }

// WithMCPClient enables the MCP execution kind.
func WithMCPClient(c MCPClient) Option { return func(e *Executor) { e.mcp = c } }

// WithRateLimiter throttles tool dispatch: a call blocks on the limiter
// before routing, surfacing RATE_LIMIT_ERROR if the context deadline
// expires first.
func WithRateLimiter(l *rate.Limiter) Option { return func(e *Executor) { e.limiter = l } }

// WithMiddleware appends middleware to the onion chain, outermost first.
func WithMiddleware(mw ...Middleware) Option {
	return func(e *Executor) { e.middleware = append(e.middleware, mw...) }
}

// WithAgentRunner enables the AGENT execution kind.
func WithAgentRunner(r AgentRunner) Option { return func(e *Executor) { e.agentRunner = r } }

// New constructs an Executor with sane defaults: no-op telemetry, an
// in-memory future broker, no MCP client, no rate limiter, no middleware.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger:  telemetry.NewNoopLogger(),
		tracer:  telemetry.NewNoopTracer(),
		metrics: telemetry.NewNoopMetrics(),
		schemas: newSchemaCache(),
		broker:  NewMemoryBroker(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExecuteToolCalls resolves and routes every call in calls, returning
// results in the same order as calls regardless of completion order. Calls
// sharing a non-empty MutexGroup never execute concurrently with each
// other; calls in distinct groups (or no group) run in parallel.
func (e *Executor) ExecuteToolCalls(ctx context.Context, calls []com.ToolUseEntry, c *com.COM) []com.ToolResultEntry {
	results := make([]com.ToolResultEntry, len(calls))

	groupMu := make(map[string]*sync.Mutex)
	for _, call := range calls {
		spec, _ := resolveSpec(c, call.Name)
		if spec != nil && spec.MutexGroup != "" {
			if _, ok := groupMu[spec.MutexGroup]; !ok {
				groupMu[spec.MutexGroup] = &sync.Mutex{}
			}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			spec, _ := resolveSpec(c, call.Name)
			if spec != nil && spec.MutexGroup != "" {
				m := groupMu[spec.MutexGroup]
				m.Lock()
				defer m.Unlock()
			}
			results[i] = e.executeOne(gCtx, call, spec, c)
			return nil
		})
	}
	// Every goroutine above always returns nil: tool failures are captured
	// as result values, never as errors that would cancel sibling calls.
	_ = g.Wait()

	return results
}

// DeliverConfirmation resolves a pending confirmation gate for callID, for
// use by the client surface that received the confirmation_required
// lifecycle event.
func (e *Executor) DeliverConfirmation(callID string, approved bool) error {
	return e.broker.ResolveConfirmation(callID, approved)
}

// DeliverResult resolves a pending CLIENT tool call's result future.
func (e *Executor) DeliverResult(callID string, result ClientResult) error {
	return e.broker.ResolveResult(callID, result)
}

func resolveSpec(c *com.COM, name string) (*com.ToolSpec, bool) {
	if spec, ok := c.GetTool(name); ok {
		return spec, true
	}
	if spec, ok := c.GetToolByAlias(name); ok {
		return spec, true
	}
	return nil, false
}

func (e *Executor) executeOne(ctx context.Context, call com.ToolUseEntry, spec *com.ToolSpec, c *com.COM) com.ToolResultEntry {
	ctx, span := e.tracer.Start(ctx, "toolkit.execute_tool_call")
	defer span.End()

	fail := func(kind ErrorKind, message string) com.ToolResultEntry {
		e.metrics.IncCounter("toolkit.tool_call", 1, "tool", call.Name, "kind", string(kind))
		return com.ToolResultEntry{ToolUseID: call.ID, Success: false, ErrorKind: string(kind), Content: []model.Part{model.TextPart{Text: message}}}
	}

	if spec == nil {
		return fail(KindToolNotFound, "tool not found: "+call.Name)
	}

	if err := e.schemas.validate(spec.Name, spec.ParameterSchema, call.Input); err != nil {
		return com.ToolResultEntry{
			ToolUseID: call.ID,
			Success:   false,
			ErrorKind: string(KindValidationError),
			Content:   []model.Part{model.TextPart{Text: err.Error()}},
		}
	}

	if spec.Confirmation.Required(call.Input) {
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = defaultConfirmationTimeout
		}
		e.logger.Info(ctx, "confirmation_required", "tool", call.Name, "call_id", call.ID)
		approved, err := e.broker.AwaitConfirmation(ctx, call.ID, timeout)
		if err != nil {
			if err == ErrBrokerTimeout {
				return fail(KindConfirmationTimeout, "confirmation timed out")
			}
			return fail(KindAbortError, err.Error())
		}
		if !approved {
			return fail(KindUserDenied, "user denied the tool call")
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return fail(KindRateLimitError, "rate limit wait canceled: "+err.Error())
		}
	}

	handler := e.routeHandler(spec, call.ID)
	for i := len(e.middleware) - 1; i >= 0; i-- {
		handler = e.middleware[i](handler)
	}

	execCtx := ctx
	var cancel context.CancelFunc
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	execCtx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := handler(execCtx, call.Input, c)
	if err != nil {
		// Classify against the caller's ctx, not execCtx: execCtx's
		// deadline is this call's own per-tool timeout, which must
		// classify as TIMEOUT_ERROR (recoverable), not ABORT_ERROR.
		classified := classifyError(ctx, err)
		return com.ToolResultEntry{
			ToolUseID: call.ID,
			Success:   false,
			ErrorKind: string(classified.Kind),
			Content:   []model.Part{model.TextPart{Text: classified.Error()}},
		}
	}

	e.metrics.IncCounter("toolkit.tool_call", 1, "tool", call.Name, "kind", "success")
	return com.ToolResultEntry{ToolUseID: call.ID, Success: true, Content: result.Content}
}

// routeHandler selects the effective handler by execution kind, before
// middleware is applied. callID binds the CLIENT execution kind's
// pending-result future to this specific call.
func (e *Executor) routeHandler(spec *com.ToolSpec, callID string) com.ToolHandler {
	switch spec.ExecutionKind {
	case com.ExecutionServer:
		if spec.Handler == nil {
			return missingHandler()
		}
		return spec.Handler

	case com.ExecutionClient:
		return e.clientHandler(spec, callID)

	case com.ExecutionProvider:
		return providerHandler()

	case com.ExecutionMCP:
		return e.mcpHandler(spec)

	case com.ExecutionAgent:
		return e.agentHandler(spec)

	default:
		return missingHandler()
	}
}

func missingHandler() com.ToolHandler {
	return func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
		return com.HandlerResult{}, NewToolError(KindToolNoHandler, "tool has no handler for its execution kind")
	}
}

// providerHandler produces a synthetic success result: the LLM provider
// has already executed the call and embedded the result in its response,
// so the kernel does not re-execute it.
func providerHandler() com.ToolHandler {
	return func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
		return com.HandlerResult{}, nil
	}
}

func (e *Executor) clientHandler(spec *com.ToolSpec, callID string) com.ToolHandler {
	return func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
		if !spec.RequiresResponse {
			if spec.DefaultResult != nil {
				return com.HandlerResult{Content: spec.DefaultResult.Content}, nil
			}
			return com.HandlerResult{}, nil
		}
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = defaultToolTimeout
		}
		result, err := e.broker.AwaitResult(ctx, callID, timeout)
		if err != nil {
			if err == ErrBrokerTimeout {
				return com.HandlerResult{}, NewToolError(KindClientTimeout, "client did not deliver a result in time")
			}
			return com.HandlerResult{}, err
		}
		if !result.Success {
			return com.HandlerResult{}, NewToolError(KindApplicationError, "client reported tool failure")
		}
		return com.HandlerResult{Content: result.Content}, nil
	}
}

func (e *Executor) mcpHandler(spec *com.ToolSpec) com.ToolHandler {
	return func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
		if e.mcp == nil {
			return com.HandlerResult{}, NewToolError(KindToolNoHandler, "no MCP client configured")
		}
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = defaultToolTimeout
		}
		parts, err := e.mcp.CallTool(ctx, spec.MCPServer, spec.Name, input, timeout)
		if err != nil {
			return com.HandlerResult{}, err
		}
		return com.HandlerResult{Content: parts}, nil
	}
}

func (e *Executor) agentHandler(spec *com.ToolSpec) com.ToolHandler {
	return func(ctx context.Context, input map[string]any, deps *com.COM) (com.HandlerResult, error) {
		if e.agentRunner == nil {
			return com.HandlerResult{}, NewToolError(KindToolNoHandler, "no agent runner configured")
		}
		parts, err := e.agentRunner(ctx, spec.AgentID, input)
		if err != nil {
			return com.HandlerResult{}, err
		}
		return com.HandlerResult{Content: parts}, nil
	}
}

package engine

import (
	"context"
	"sync"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/compiler"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/telemetry"
	"github.com/agentrt/core/toolkit"
)

// TickHook runs at a tick boundary. Returning an error is treated as a
// Phase: PhaseHook EngineError, routed through OnErrorHooks.
type TickHook func(ctx context.Context, c *com.COM, tickState *compiler.TickState) error

// CompleteHook runs once when an execution finishes, successfully or
// aborted.
type CompleteHook func(ctx context.Context, c *com.COM, aborted bool)

const queuedMessagesStateKey = "engine.queued_messages"

// Config configures one Session.
type Config struct {
	MaxTicks      int
	MaxIterations int

	Adapter  Adapter
	Executor *toolkit.Executor
	Evaluate compiler.EvaluateFunc

	OnTickStart  []TickHook
	AfterCompile []compiler.AfterCompileHook
	OnTickEnd    []TickHook
	OnComplete   []CompleteHook
	Continuations []ContinuationCallback

	OnErrorHooks []OnError

	Logger  telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics
}

// Session runs the tick loop (§4.6) for one COM instance. Scheduling is
// cooperative and single-threaded per session: Run must not be called
// concurrently with itself on the same Session.
type Session struct {
	id  string
	com *com.COM
	cfg Config

	events *eventBuffer

	queueMu sync.Mutex
	queued  []model.Message

	tick int

	abortMu sync.Mutex
	aborted bool
}

// NewSession constructs a Session bound to c, ready to Run once hooks and
// config are finalized.
func NewSession(id string, c *com.COM, cfg Config) *Session {
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 25
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NewNoopTracer()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNoopMetrics()
	}
	return &Session{id: id, com: c, cfg: cfg, events: newEventBuffer(id)}
}

// Subscribe registers a sink for this session's lifecycle event stream.
// Call before Run.
func (s *Session) Subscribe(sink func(Event)) { s.events.Subscribe(sink) }

// SendMessage queues an externally supplied message for inclusion in the
// tick that is about to start, or the next one if a tick is already
// underway. Queued messages do not interrupt an in-flight tick's
// compilation.
func (s *Session) SendMessage(msg model.Message) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queued = append(s.queued, msg)
}

// Abort signals the session to interrupt its current (or next) model
// stream. The current tick still runs on_tick_end/on_complete/
// execution_end with aborted=true.
func (s *Session) Abort() {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	s.aborted = true
}

func (s *Session) isAborted() bool {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.aborted
}

// Run executes ticks until the continuation policy resolves false, the
// tick count reaches MaxTicks, or the session is aborted.
func (s *Session) Run(ctx context.Context) error {
	startLen := len(s.com.Timeline())
	aborted := false
	var prev *com.Input

	for {
		continueLoop, tickAborted, err := s.runOneTick(ctx, &prev)
		if err != nil {
			return err
		}
		if tickAborted {
			aborted = true
			break
		}
		if !continueLoop {
			break
		}
		if s.tick >= s.cfg.MaxTicks {
			break
		}
	}

	full := s.com.Timeline()
	newEntries := full[startLen:]
	for _, hook := range s.cfg.OnComplete {
		hook(ctx, s.com, aborted)
	}
	s.events.emit(s.tick, EventExecutionEnd, ExecutionEndPayload{
		NewTimelineEntries: newEntries,
		Timeline:           full,
		Aborted:            aborted,
	})
	return nil
}

// runOneTick implements the ten-step per-tick algorithm. It returns
// whether the loop should continue to another tick, whether this tick
// was aborted, and any unrecoverable error.
func (s *Session) runOneTick(ctx context.Context, prev **com.Input) (bool, bool, error) {
	// Step 1: advance tick counter, snapshot queued messages.
	s.tick++
	tick := s.tick

	s.queueMu.Lock()
	queued := s.queued
	s.queued = nil
	s.queueMu.Unlock()

	s.com.SetState(queuedMessagesStateKey, queued)
	tickState := &compiler.TickState{TickNumber: tick, Previous: *prev}

	s.events.emit(tick, EventTickStart, nil)

	// Step 2: on_tick_start.
	for _, hook := range s.cfg.OnTickStart {
		if err := hook(ctx, s.com, tickState); err != nil {
			if !s.handleError(ctx, &EngineError{Phase: PhaseHook, Recoverable: true, Err: err}) {
				return false, true, nil
			}
		}
	}

	// Step 3: compile.
	result, err := compiler.Compile(s.com, tickState, s.cfg.Evaluate, s.cfg.AfterCompile, s.cfg.MaxIterations)
	if err != nil {
		recoverable := s.handleError(ctx, &EngineError{Phase: PhaseCompile, Recoverable: false, Err: err})
		return false, !recoverable, nil
	}

	// Step 4: build model input.
	input := result.Compiled.ToInput(map[string]any{"tick": tick})
	*prev = &input
	modelInput := FromEngineState(input)

	// Step 5: invoke model, pushing deltas into a fresh accumulator.
	acc := stream.New()
	out, aborted, err := s.invokeModel(ctx, modelInput, acc, tick)
	if err != nil {
		recoverable := s.handleError(ctx, &EngineError{Phase: PhaseModelInvoke, Recoverable: true, Err: err})
		if !recoverable {
			return false, true, nil
		}
	}
	if aborted {
		// An aborted tick still runs on_tick_end before the execution ends.
		for _, hook := range s.cfg.OnTickEnd {
			if err := hook(ctx, s.com, tickState); err != nil {
				s.handleError(ctx, &EngineError{Phase: PhaseHook, Recoverable: true, Err: err})
			}
		}
		return false, true, nil
	}

	// Step 6: append assistant message.
	s.com.AppendMessage(out.Message)

	// Step 7: execute any tool calls.
	if len(out.ToolCalls) > 0 && s.cfg.Executor != nil {
		calls := make([]com.ToolUseEntry, 0, len(out.ToolCalls))
		for _, tc := range out.ToolCalls {
			entry := com.ToolUseEntry{ID: tc.ID, Name: tc.Name, Input: tc.Input, AssistantBlock: tc.BlockIndex}
			calls = append(calls, entry)
			s.com.AppendToolUse(entry)
		}
		results := s.cfg.Executor.ExecuteToolCalls(ctx, calls, s.com)
		for _, r := range results {
			s.com.AppendToolResult(r)
			s.events.emit(tick, EventToolResult, ToolResultPayload{ToolUseID: r.ToolUseID, Result: r})
		}
	}

	// Step 8: on_tick_end and continuation callbacks.
	for _, hook := range s.cfg.OnTickEnd {
		if err := hook(ctx, s.com, tickState); err != nil {
			s.handleError(ctx, &EngineError{Phase: PhaseHook, Recoverable: true, Err: err})
		}
	}

	contResult := ContinuationResult{HadToolCalls: len(out.ToolCalls) > 0, Response: ToEngineState(out)}
	seed := contResult.HadToolCalls
	shouldContinue := runContinuations(seed, contResult, s.com, s.cfg.Continuations)

	s.events.emit(tick, EventTickEnd, nil)

	return shouldContinue, false, nil
}

// handleError routes an EngineError through registered OnError hooks,
// returning whether the tick loop may proceed (true) or must abort
// (false).
func (s *Session) handleError(ctx context.Context, ee *EngineError) bool {
	s.cfg.Logger.Error(ctx, "engine error", "phase", string(ee.Phase), "recoverable", ee.Recoverable, "err", ee.Err)
	for _, hook := range s.cfg.OnErrorHooks {
		switch hook(ctx, ee) {
		case ActionAbort:
			return false
		case ActionContinue:
			return true
		}
	}
	return ee.Recoverable
}

// invokeModel prepares the provider request, streams (or calls
// non-streaming), and pushes every delta into acc, translating emitted
// stream.Events into lifecycle Events as it goes. It returns the
// accumulated output, whether the session was aborted mid-stream, and
// any adapter error.
func (s *Session) invokeModel(ctx context.Context, in ModelInput, acc *stream.Accumulator, tick int) (stream.Output, bool, error) {
	if s.cfg.Adapter == nil {
		return stream.Output{}, false, nil
	}

	providerInput, err := s.cfg.Adapter.PrepareInput(ctx, in)
	if err != nil {
		return stream.Output{}, false, err
	}

	emit := func(events []stream.Event) {
		for _, ev := range events {
			kind, ok := streamKindToEvent[ev.Kind]
			if !ok {
				continue
			}
			s.events.emit(tick, kind, ev)
		}
	}

	if !s.cfg.Adapter.SupportsStreaming() {
		out, err := s.cfg.Adapter.Execute(ctx, providerInput)
		if err != nil {
			return stream.Output{}, false, err
		}
		delta, err := s.cfg.Adapter.MapChunk(out)
		if err != nil {
			return stream.Output{}, false, err
		}
		if delta != nil {
			emit(acc.Push(*delta))
		}
		return acc.ToModelOutput(), false, nil
	}

	aborted := false
	sinkErr := s.cfg.Adapter.ExecuteStream(ctx, providerInput, func(chunk ProviderChunk) error {
		if s.isAborted() {
			aborted = true
			return context.Canceled
		}
		delta, err := s.cfg.Adapter.MapChunk(chunk)
		if err != nil {
			return err
		}
		if delta == nil {
			return nil
		}
		emit(acc.Push(*delta))
		return nil
	})
	if sinkErr != nil && !aborted {
		return stream.Output{}, false, sinkErr
	}

	return acc.ToModelOutput(), aborted, nil
}

package engine

import (
	"context"
	"fmt"
)

// Phase identifies which stage of the tick loop an EngineError
// originated from.
type Phase string

const (
	PhaseCompile        Phase = "compile"
	PhaseModelPrepare    Phase = "model_prepare"
	PhaseModelInvoke     Phase = "model_invoke"
	PhaseToolExecution   Phase = "tool_execution"
	PhaseHook            Phase = "hook"
	PhaseContinuation    Phase = "continuation"
)

// EngineError is the engine's Tier 2 error: a failure in the engine's own
// machinery rather than a tool call, which is always reported as a Tier 1
// tool_result value instead of an error. Recoverable indicates whether
// the tick loop can proceed to on_tick_end/on_complete despite the
// failure, or must abort the execution outright.
type EngineError struct {
	Phase       Phase
	Recoverable bool
	Context     map[string]any
	Err         error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s error (recoverable=%v): %v", e.Phase, e.Recoverable, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// RecoveryAction is what an OnError hook returns to tell the tick loop
// how to proceed after an EngineError.
type RecoveryAction string

const (
	// ActionAbort ends the current execution immediately: on_complete and
	// execution_end still fire, with aborted=true.
	ActionAbort RecoveryAction = "abort"

	// ActionContinue proceeds to on_tick_end as if the failing phase had
	// produced no output, only valid when the EngineError is Recoverable.
	ActionContinue RecoveryAction = "continue"
)

// OnError is a component hook consulted when an EngineError occurs.
// Hooks run in registration order; the first to return a non-empty
// RecoveryAction wins. If no hook returns one, Recoverable errors default
// to ActionContinue and non-recoverable errors default to ActionAbort.
type OnError func(ctx context.Context, err *EngineError) RecoveryAction

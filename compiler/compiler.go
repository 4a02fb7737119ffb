// Package compiler implements the compile-until-stable loop: it evaluates
// an opaque component tree against a Context Object Model and a tick state,
// repeatedly, until no component requests recompilation or a
// forced-stabilization bound is reached.
package compiler

import (
	"fmt"

	"github.com/agentrt/core/com"
)

// EvaluateFunc evaluates the component tree once against com and tick,
// appending sections/tools (and, for the timeline component, timeline
// entries) as a side effect, and optionally calling com.RequestRecompile.
// The component tree itself is opaque to the compiler; this is its only
// seam into the core.
type EvaluateFunc func(c *com.COM, tick *TickState) error

// AfterCompileHook runs once per pass, after the compiled structure is
// captured, with iteration bookkeeping. It may call com.RequestRecompile.
type AfterCompileHook func(cs *com.CompiledStructure, tick *TickState, info IterationInfo) error

// IterationInfo is passed to AfterCompileHook so it can reason about where
// it is within the compile-until-stable loop.
type IterationInfo struct {
	Iteration    int
	MaxIterations int
}

// TickState is the per-tick state threaded through component evaluation.
// The engine owns its fields; the compiler only reads TickNumber and
// passes the pointer through unchanged.
type TickState struct {
	TickNumber int
	// Previous is the compiled input sent to the model on the prior tick;
	// nil on tick 1.
	Previous *com.Input
}

// RenderError is returned when a component panics or returns an error
// during tree evaluation. The partial compiled structure for that pass is
// discarded; phase is always "render" per the two-tier error model.
type RenderError struct {
	Phase string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("compiler: %s: %v", e.Phase, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Result is the outcome of Compile: a stable (or forced-stable) compiled
// structure plus loop bookkeeping.
type Result struct {
	Compiled     *com.CompiledStructure
	Iterations   int
	ForcedStable bool
}

// Compile runs the compile-until-stable algorithm (§4.2): evaluate,
// capture, run after-compile hooks, and repeat while a recompile was
// requested and the iteration bound has not been reached.
//
// Determinism requirement: for a fixed (COM snapshot, tick, tree), Compile
// must produce the same output on every call — evaluate must not depend on
// wall-clock time or uninjected randomness.
func Compile(c *com.COM, tick *TickState, evaluate EvaluateFunc, afterCompile []AfterCompileHook, maxIterations int) (*Result, error) {
	if maxIterations < 1 {
		maxIterations = 1
	}

	pass := 0
	reasonSet := map[string]struct{}{}
	var cs *com.CompiledStructure

	for {
		pass++
		c.BeginPass()

		if err := evaluateSafely(evaluate, c, tick); err != nil {
			return nil, &RenderError{Phase: "render", Err: err}
		}

		cs = &com.CompiledStructure{
			Sections:          c.Sections(),
			Timeline:          c.Timeline(),
			Tools:             c.Tools(),
			SectionCollisions: c.TakeSectionCollisions(),
			Iterations:        pass,
		}

		evalRecompile, evalReasons := c.DrainRecompileState()
		for _, r := range evalReasons {
			reasonSet[r] = struct{}{}
		}

		for _, hook := range afterCompile {
			if err := hook(cs, tick, IterationInfo{Iteration: pass - 1, MaxIterations: maxIterations}); err != nil {
				return nil, &RenderError{Phase: "render", Err: err}
			}
		}
		hookRecompile, hookReasons := c.DrainRecompileState()
		for _, r := range hookReasons {
			reasonSet[r] = struct{}{}
		}

		recompileRequested := evalRecompile || hookRecompile
		if !recompileRequested {
			cs.ForcedStable = false
			break
		}
		if pass >= maxIterations {
			// The bound was reached while a recompile was still pending:
			// the request is dropped rather than carried into a pass that
			// never runs. Nothing is logged; ForcedStable is the only
			// record of the dropped request.
			cs.ForcedStable = true
			break
		}
	}

	reasons := make([]string, 0, len(reasonSet))
	for r := range reasonSet {
		reasons = append(reasons, r)
	}
	cs.RecompileReasons = reasons

	return &Result{Compiled: cs, Iterations: cs.Iterations, ForcedStable: cs.ForcedStable}, nil
}

// evaluateSafely converts a panic during tree evaluation into a render
// error, matching the spec's "compiler captures the error" failure
// semantics even when a component panics instead of returning an error.
func evaluateSafely(evaluate EvaluateFunc, c *com.COM, tick *TickState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during component evaluation: %v", r)
		}
	}()
	return evaluate(c, tick)
}

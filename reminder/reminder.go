// Package reminder implements budget-aware reminder injection: an
// optional tick_end observer that appends a system-role timeline message
// when a registered budget predicate trips. It is pure opt-in UX, not
// required by any core invariant.
package reminder

import (
	"context"
	"fmt"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/compiler"
	"github.com/agentrt/core/engine"
)

// Budget observes a COM at tick_end and reports whether its limit has
// been exceeded, plus the message to inject the first time it trips.
type Budget struct {
	// Name identifies the budget in the default message and in the
	// tripped-state bookkeeping that Reset clears.
	Name string

	// Predicate reports whether the budget is currently exceeded.
	Predicate func(c *com.COM) bool

	// Message is the system-role text appended the first tick the
	// predicate trips. It is only injected once per Reminder instance
	// per budget, to avoid repeating the same reminder every tick.
	Message string
}

// Reminder holds a set of budgets. Its Hook method returns an
// engine.TickHook usable as an OnTickEnd hook, which evaluates every
// registered Budget and appends a system message for each one that newly
// trips.
type Reminder struct {
	budgets  []Budget
	tripped  map[string]bool
}

// New constructs a Reminder with the given budgets.
func New(budgets ...Budget) *Reminder {
	return &Reminder{budgets: budgets, tripped: make(map[string]bool)}
}

// Hook returns an engine.TickHook suitable for Config.OnTickEnd.
func (r *Reminder) Hook() engine.TickHook {
	return func(ctx context.Context, c *com.COM, tick *compiler.TickState) error {
		for _, b := range r.budgets {
			if r.tripped[b.Name] {
				continue
			}
			if b.Predicate == nil || !b.Predicate(c) {
				continue
			}
			r.tripped[b.Name] = true
			msg := b.Message
			if msg == "" {
				msg = fmt.Sprintf("budget %q exceeded", b.Name)
			}
			c.AppendSystemMessage(msg)
		}
		return nil
	}
}

// Reset clears every budget's tripped state, for reuse across a new
// execution on the same Reminder instance.
func (r *Reminder) Reset() {
	r.tripped = make(map[string]bool)
}

// ToolCallCountBudget returns a Budget that trips once the timeline
// contains more than max tool_use entries.
func ToolCallCountBudget(name string, max int, message string) Budget {
	return Budget{
		Name:    name,
		Message: message,
		Predicate: func(c *com.COM) bool {
			count := 0
			for _, entry := range c.Timeline() {
				if entry.Kind == com.EntryToolUse {
					count++
				}
			}
			return count > max
		},
	}
}

// TokenEstimateBudget returns a Budget that trips once the COM's
// registered token estimator reports that the summed estimates of the
// timeline's message entries exceed max; tool_use and tool_result entries
// are not counted.
func TokenEstimateBudget(name string, max int, message string) Budget {
	return Budget{
		Name:    name,
		Message: message,
		Predicate: func(c *com.COM) bool {
			estimate := c.TokenEstimator()
			if estimate == nil {
				return false
			}
			total := 0
			for _, entry := range c.Timeline() {
				if entry.Kind == com.EntryMessage && entry.Message != nil {
					total += estimate(entry.Message.Text())
				}
			}
			return total > max
		},
	}
}

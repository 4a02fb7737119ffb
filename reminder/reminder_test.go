package reminder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/com"
	"github.com/agentrt/core/compiler"
	"github.com/agentrt/core/model"
)

func TestReminder_AppendsSystemMessageOnceBudgetTrips(t *testing.T) {
	c := com.New()
	c.AppendToolUse(com.ToolUseEntry{ID: "1", Name: "x"})
	c.AppendToolUse(com.ToolUseEntry{ID: "2", Name: "x"})

	r := New(ToolCallCountBudget("tool_calls", 1, "slow down"))
	hook := r.Hook()

	require.NoError(t, hook(context.Background(), c, &compiler.TickState{TickNumber: 1}))

	timeline := c.Timeline()
	require.Len(t, timeline, 3)
	assert.Equal(t, model.RoleSystem, timeline[2].Message.Role)
	assert.Contains(t, timeline[2].Message.Text(), "slow down")

	// A second tick past the trip point does not repeat the reminder.
	require.NoError(t, hook(context.Background(), c, &compiler.TickState{TickNumber: 2}))
	assert.Len(t, c.Timeline(), 3)
}

func TestReminder_DoesNothingBelowThreshold(t *testing.T) {
	c := com.New()
	r := New(ToolCallCountBudget("tool_calls", 5, "slow down"))
	require.NoError(t, r.Hook()(context.Background(), c, &compiler.TickState{TickNumber: 1}))
	assert.Len(t, c.Timeline(), 0)
}

func TestReminder_ResetAllowsRetrippingOnNewExecution(t *testing.T) {
	c := com.New()
	c.AppendToolUse(com.ToolUseEntry{ID: "1", Name: "x"})
	c.AppendToolUse(com.ToolUseEntry{ID: "2", Name: "x"})

	r := New(ToolCallCountBudget("tool_calls", 1, "slow down"))
	hook := r.Hook()
	require.NoError(t, hook(context.Background(), c, &compiler.TickState{TickNumber: 1}))
	assert.Len(t, c.Timeline(), 3)

	r.Reset()
	require.NoError(t, hook(context.Background(), c, &compiler.TickState{TickNumber: 2}))
	assert.Len(t, c.Timeline(), 4)
}

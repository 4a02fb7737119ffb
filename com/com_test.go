package com

import (
	"testing"

	"github.com/agentrt/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveShouldContinue_StopBeatsContinueAtEqualPriority(t *testing.T) {
	c := New()
	c.RequestContinue(0, "keep going")
	c.RequestStop(0, "enough")

	got := c.ResolveShouldContinue(false)
	assert.False(t, got, "stop must win ties at equal priority")
}

func TestResolveShouldContinue_HigherPriorityTierWins(t *testing.T) {
	c := New()
	c.RequestStop(0, "low priority stop")
	c.RequestContinue(5, "high priority continue")

	got := c.ResolveShouldContinue(false)
	assert.True(t, got, "only the highest priority tier should be consulted")
}

func TestResolveShouldContinue_PreservesSeedWhenNoContinueFlipsIt(t *testing.T) {
	c := New()
	// No requests at all: seed passes through unchanged.
	assert.True(t, c.ResolveShouldContinue(true))
	assert.False(t, c.ResolveShouldContinue(false))
}

func TestResolveShouldContinue_IdempotentWithoutInterleavedRequests(t *testing.T) {
	c := New()
	c.RequestStop(0, "x")

	first := c.ResolveShouldContinue(true)
	second := c.ResolveShouldContinue(true)
	third := c.ResolveShouldContinue(true)

	assert.False(t, first, "the pending stop request decides the first call")
	assert.Equal(t, second, third, "calling again without new requests must yield the same result")
	assert.True(t, second, "the request set must be cleared after the first call")
}

func TestRegisterTool_DuplicateNameIsHardError(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterTool(&ToolSpec{Name: "search"}))

	err := c.RegisterTool(&ToolSpec{Name: "search"})
	require.Error(t, err)
	var conflict *ToolRegistrationConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestRegisterTool_AliasFirstWinsOnCollision(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterTool(&ToolSpec{Name: "search", Aliases: []string{"find"}}))
	require.NoError(t, c.RegisterTool(&ToolSpec{Name: "lookup", Aliases: []string{"find"}}))

	tool, ok := c.GetToolByAlias("find")
	require.True(t, ok)
	assert.Equal(t, "search", tool.Name, "the first registrant keeps a colliding alias")
}

func TestGetTool_FindsAudienceUserTools(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterTool(&ToolSpec{Name: "debug_dump", Audience: model.AudienceUser}))

	tool, ok := c.GetTool("debug_dump")
	require.True(t, ok)
	assert.False(t, tool.Audience.Visible(model.AudienceModel))

	assert.Empty(t, c.ModelTools(), "audience=user tools must not appear in model-visible tools")
}

func TestRegisterSection_CollisionIsLastWriteWinsAndLogged(t *testing.T) {
	c := New()
	c.BeginPass()
	c.RegisterSection(Section{ID: "system", Blocks: []model.Part{model.TextPart{Text: "first"}}})
	c.RegisterSection(Section{ID: "system", Blocks: []model.Part{model.TextPart{Text: "second"}}})

	sections := c.Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "second", sections[0].Blocks[0].(model.TextPart).Text, "last write wins within a pass")

	collisions := c.TakeSectionCollisions()
	assert.Equal(t, []string{"system"}, collisions)
}

func TestSetState_NotifiesListenersWithPreviousValue(t *testing.T) {
	c := New()
	var gotKey string
	var gotNew, gotPrev any
	c.OnStateChanged(func(key string, newValue, previousValue any) {
		gotKey, gotNew, gotPrev = key, newValue, previousValue
	})

	c.SetState("budget", 10)
	c.SetState("budget", 20)

	assert.Equal(t, "budget", gotKey)
	assert.Equal(t, 20, gotNew)
	assert.Equal(t, 10, gotPrev)
}

func TestDefaultTokenEstimator(t *testing.T) {
	c := New()
	assert.Equal(t, 4, c.TokenEstimator()("")) // ceil(0/4)+4
	assert.Equal(t, 5, c.TokenEstimator()("ab"))
}

func TestAppendTimeline_IsOrderedAndReadOnlySnapshot(t *testing.T) {
	c := New()
	c.AppendMessage(model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}})
	c.AppendToolUse(ToolUseEntry{ID: "call_1", Name: "search"})
	c.AppendToolResult(ToolResultEntry{ToolUseID: "call_1", Success: true})

	entries := c.Timeline()
	require.Len(t, entries, 3)
	assert.Equal(t, EntryMessage, entries[0].Kind)
	assert.Equal(t, EntryToolUse, entries[1].Kind)
	assert.Equal(t, EntryToolResult, entries[2].Kind)

	entries[0].Kind = EntryToolResult
	assert.Equal(t, EntryMessage, c.Timeline()[0].Kind, "Timeline() must return a defensive copy")
}

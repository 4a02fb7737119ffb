package com

import "github.com/agentrt/core/model"

// EntryKind distinguishes the three timeline entry shapes.
type EntryKind string

const (
	EntryMessage    EntryKind = "message"
	EntryToolUse    EntryKind = "tool_use"
	EntryToolResult EntryKind = "tool_result"
)

// TimelineEntry is one append-only timeline record. Exactly one of the
// Message/ToolUse/ToolResult fields is populated, selected by Kind.
type TimelineEntry struct {
	Kind EntryKind

	Message *model.Message

	ToolUse *ToolUseEntry

	ToolResult *ToolResultEntry
}

// ToolUseEntry records a tool invocation requested by the model, linked
// back to the assistant content block that produced it.
type ToolUseEntry struct {
	ID              string
	Name            string
	Input           map[string]any
	AssistantBlock  int
}

// ToolResultEntry records the outcome of executing a ToolUseEntry.
type ToolResultEntry struct {
	ToolUseID string
	Success   bool
	Content   []model.Part
	ErrorKind string
}

// Timeline returns the full append-only timeline accumulated so far. The
// returned slice is a snapshot; callers must not mutate it.
func (c *COM) Timeline() []TimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TimelineEntry, len(c.timeline))
	copy(out, c.timeline)
	return out
}

// AppendMessage appends a message entry to the timeline. Only the timeline
// component itself is expected to call this during compilation; the engine
// calls it directly when finalizing assistant turns and tool results.
func (c *COM) AppendMessage(msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = append(c.timeline, TimelineEntry{Kind: EntryMessage, Message: &msg})
}

// AppendToolUse appends a tool_use entry to the timeline.
func (c *COM) AppendToolUse(entry ToolUseEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = append(c.timeline, TimelineEntry{Kind: EntryToolUse, ToolUse: &entry})
}

// AppendToolResult appends a tool_result entry to the timeline.
func (c *COM) AppendToolResult(entry ToolResultEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = append(c.timeline, TimelineEntry{Kind: EntryToolResult, ToolResult: &entry})
}

// AppendSystemMessage is a convenience used by the budget-aware reminder
// hook and error-recovery path to inject a system-role text message.
func (c *COM) AppendSystemMessage(text string) {
	c.AppendMessage(model.Message{
		Role:  model.RoleSystem,
		Parts: []model.Part{model.TextPart{Text: text}},
	})
}

// Reset clears the timeline. Per the COM invariants, the timeline is
// append-only within a session except for this explicit reset operation,
// used only when the caller tears down and reinitializes a session in
// place rather than constructing a fresh COM.
func (c *COM) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = nil
}

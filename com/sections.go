package com

import "github.com/agentrt/core/model"

// Section is an addressable, ordered run of content blocks. Audience
// determines whether the section participates in model input (AudienceModel)
// or is user-transcript-only (AudienceUser), or both.
type Section struct {
	ID       string
	Blocks   []model.Part
	Audience model.Audience
}

// RegisterSection registers or overwrites a section for the current
// compilation pass. Section ids are unique; a collision within a single
// pass is last-write-wins, recorded in the pass's collision list rather
// than rejected.
func (c *COM) RegisterSection(s Section) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sections[s.ID]; !exists {
		c.sectionOrder = append(c.sectionOrder, s.ID)
	} else {
		c.sectionCollisions = append(c.sectionCollisions, s.ID)
	}
	c.sections[s.ID] = &s
}

// Sections returns the registered sections in first-registration order for
// the current pass.
func (c *COM) Sections() []*Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Section, 0, len(c.sectionOrder))
	for _, id := range c.sectionOrder {
		out = append(out, c.sections[id])
	}
	return out
}

// BeginPass clears the per-pass section and tool registries (and the
// section collision log). Called by the compiler before each evaluation of
// the component tree: unlike the timeline, sections and tools are rebuilt
// fresh every pass from the component tree's declarations.
func (c *COM) BeginPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections = make(map[string]*Section)
	c.sectionOrder = nil
	c.sectionCollisions = nil
	c.tools = make(map[string]*ToolSpec)
	c.aliases = make(map[string]string)
}

// TakeSectionCollisions returns and clears the section ids that collided
// during the just-completed pass, for inclusion in the compiled structure.
func (c *COM) TakeSectionCollisions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sectionCollisions
	c.sectionCollisions = nil
	return out
}

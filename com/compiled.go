package com

import "github.com/agentrt/core/model"

// CompiledStructure is the immutable output of one compilation pass:
// ordered sections, the timeline slice visible to this pass, the
// model-audience tool set, and bookkeeping about the pass itself.
type CompiledStructure struct {
	Sections          []*Section
	Timeline          []TimelineEntry
	Tools             []*ToolSpec
	SectionCollisions []string
	RecompileReasons  []string
	Iterations        int
	ForcedStable      bool
}

// Input is the projection of a CompiledStructure fed to a model adapter:
// timeline, system entries (sections with empty id act as system prompt
// material in this implementation — callers distinguish by Section.ID
// convention), sections, and audience=model tools.
type Input struct {
	Timeline []TimelineEntry
	Sections []*Section
	Tools    []*ToolSpec
	Metadata map[string]any
}

// ToInput produces the COMInput view described by §4.1: timeline, sections,
// tools filtered to audience=model, and metadata. It is derived from a
// CompiledStructure rather than read live off the COM, so it reflects
// exactly one compilation pass's output.
func (cs *CompiledStructure) ToInput(metadata map[string]any) Input {
	var modelTools []*ToolSpec
	for _, t := range cs.Tools {
		if t.Audience.Visible(model.AudienceModel) {
			modelTools = append(modelTools, t)
		}
	}
	return Input{
		Timeline: cs.Timeline,
		Sections: cs.Sections,
		Tools:    modelTools,
		Metadata: metadata,
	}
}

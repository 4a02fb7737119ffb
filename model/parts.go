// Package model defines the provider-agnostic message and content-block
// types shared by the COM, stream accumulator, and tool executor. Content is
// modeled as a tagged union of typed parts rather than a generic map so
// callers get compile-time safety when building or inspecting messages.
package model

// Role is the role of a message in a timeline entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Metadata is the optional bag carried by every content block: citations,
// annotations, language/mime hints, and free-form provider extensions.
//
// Merge rule (used by the stream accumulator when multiple metadata deltas
// arrive for the same block): Citations and Annotations concatenate, scalar
// fields (Language, MimeType) let the incoming value win, and Extensions is
// shallow-merged key by key.
type Metadata struct {
	Citations   []Citation
	Annotations []Annotation
	Language    string
	MimeType    string
	Extensions  map[string]any
}

// Merge folds other into m following the metadata merge rule and returns the
// result. m is not mutated; a new Metadata is returned.
func (m Metadata) Merge(other Metadata) Metadata {
	out := Metadata{
		Citations:   append(append([]Citation{}, m.Citations...), other.Citations...),
		Annotations: append(append([]Annotation{}, m.Annotations...), other.Annotations...),
		Language:    m.Language,
		MimeType:    m.MimeType,
	}
	if other.Language != "" {
		out.Language = other.Language
	}
	if other.MimeType != "" {
		out.MimeType = other.MimeType
	}
	if len(m.Extensions) > 0 || len(other.Extensions) > 0 {
		out.Extensions = make(map[string]any, len(m.Extensions)+len(other.Extensions))
		for k, v := range m.Extensions {
			out.Extensions[k] = v
		}
		for k, v := range other.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}

// Citation links generated content back to a specific location in a source.
type Citation struct {
	Title   string
	Source  string
	Quote   string
	StartAt int
	EndAt   int
}

// Annotation is a provider-specific inline annotation (e.g. a highlighted
// span, a safety flag) attached to a block.
type Annotation struct {
	Kind  string
	Value any
}

// Part is the marker interface implemented by every content-block payload
// kind: TextPart, ReasoningPart, ToolUsePart, ToolResultPart, and RawPart.
// Concrete part types are immutable once constructed by the accumulator or
// COM; callers type-switch on Part to access kind-specific fields.
type Part interface {
	isPart()
	// BlockIndex returns the monotonic block index assigned when this part's
	// block was opened.
	BlockIndex() int
	// BlockMetadata returns the merged metadata bag for this block.
	BlockMetadata() Metadata
}

// TextPart is a plain, user/model-visible text content block.
type TextPart struct {
	Index    int
	Text     string
	Metadata Metadata
}

// ReasoningPart is provider-issued reasoning/thinking content, distinct from
// TextPart so UIs and transcripts can render or redact it separately.
type ReasoningPart struct {
	Index     int
	Text      string
	Signature string
	Metadata  Metadata
}

// ToolUsePart is a tool invocation requested by the model: a call id, tool
// name, and decoded JSON input.
type ToolUsePart struct {
	Index    int
	ID       string
	Name     string
	Input    map[string]any
	Metadata Metadata
}

// ToolResultPart is the outcome of executing a tool call, attached to the
// tool_result timeline entry that answers a prior ToolUsePart.
type ToolResultPart struct {
	Index     int
	ToolUseID string
	Success   bool
	Content   []Part
	ErrorKind string
	Metadata  Metadata
}

// RawPart passes a provider-specific payload through unmodified when it does
// not map onto any of the other part kinds.
type RawPart struct {
	Index    int
	Payload  map[string]any
	Metadata Metadata
}

func (TextPart) isPart()       {}
func (ReasoningPart) isPart()  {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}
func (RawPart) isPart()        {}

func (p TextPart) BlockIndex() int       { return p.Index }
func (p ReasoningPart) BlockIndex() int  { return p.Index }
func (p ToolUsePart) BlockIndex() int    { return p.Index }
func (p ToolResultPart) BlockIndex() int { return p.Index }
func (p RawPart) BlockIndex() int        { return p.Index }

func (p TextPart) BlockMetadata() Metadata       { return p.Metadata }
func (p ReasoningPart) BlockMetadata() Metadata  { return p.Metadata }
func (p ToolUsePart) BlockMetadata() Metadata    { return p.Metadata }
func (p ToolResultPart) BlockMetadata() Metadata { return p.Metadata }
func (p RawPart) BlockMetadata() Metadata        { return p.Metadata }

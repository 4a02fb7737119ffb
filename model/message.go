package model

// Message is a single timeline entry: a role-tagged, ordered sequence of
// content parts plus identifiers used to correlate it with the run that
// produced it and, for assistant turns, the tick that produced it.
type Message struct {
	ID      string
	Role    Role
	Parts   []Part
	TurnID  int
	StopReason string
}

// Text concatenates the text of every TextPart in the message, ignoring
// reasoning, tool-use, tool-result, and raw parts. Useful for logging and for
// providers that need a flattened transcript view.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolUses returns every ToolUsePart requested by this message, in block
// order.
func (m Message) ToolUses() []ToolUsePart {
	var out []ToolUsePart
	for _, p := range m.Parts {
		if tp, ok := p.(ToolUsePart); ok {
			out = append(out, tp)
		}
	}
	return out
}

// Audience controls whether a timeline entry or tool definition is visible to
// the model's context window, to the end user transcript, or both. Some
// entries (e.g. a budget reminder injected by the engine) are model-only;
// others (e.g. a raw provider error surfaced for debugging) are user-only.
type Audience uint8

const (
	AudienceModel Audience = 1 << iota
	AudienceUser
)

// AudienceBoth is shorthand for an entry visible to both the model and the
// user-facing transcript.
const AudienceBoth = AudienceModel | AudienceUser

// Visible reports whether a is permitted to see an entry tagged with
// audience.
func (a Audience) Visible(audience Audience) bool {
	return a&audience != 0
}

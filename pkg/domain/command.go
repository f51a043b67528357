package domain

// Effects describes optional mutations a command applies alongside the state
// transition (assignee changes, tag adjustments). Nil means no effects.
type Effects struct {
	Assignee   string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	AddTags    []string `json:"add_tags,omitempty" yaml:"add_tags,omitempty"`
	RemoveTags []string `json:"remove_tags,omitempty" yaml:"remove_tags,omitempty"`
}

// Command is a named transition in the workflow descriptor.
//
// DispatchMap is keyed by the *from-state alias*, not the stage name: a
// command may have an identical target but a different executable template
// depending on where the item came from. Commands are created once at
// descriptor load and never mutated.
type Command struct {
	Name        string
	Description string
	Actor       string

	// From lists the states this command may be applied in.
	From []StateRef

	// To is the state the command transitions the item into.
	To StateRef

	// Pre and Post name invariants evaluated before/after the transition.
	Pre  []string
	Post []string

	// DispatchMap maps a from-state alias to a dispatch template.
	// The template holds a single "{id}" placeholder.
	DispatchMap map[string]string

	Effects *Effects
}

// Invariant is a named guard condition with an unparsed logic expression.
// Logic is evaluated lazily against the fixed guard grammar.
type Invariant struct {
	Name        string
	Description string

	// When holds "pre", "post", or both.
	When []string

	Logic string
}

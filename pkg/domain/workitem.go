package domain

// WorkItemCandidate is a work item considered for delegation in one selection
// cycle. It is derived by normalizing an external fetch payload; Raw keeps
// protocol fields the core does not model. Ephemeral: recreated every cycle.
type WorkItemCandidate struct {
	ID       string   `mapstructure:"id"`
	Title    string   `mapstructure:"title"`
	Status   string   `mapstructure:"status"`
	Stage    string   `mapstructure:"stage"`
	Priority string   `mapstructure:"priority"`
	Assignee string   `mapstructure:"assignee"`
	Tags     []string `mapstructure:"tags"`

	// DoNotDelegate is the explicit boolean opt-out some producers set
	// instead of (or in addition to) the do-not-delegate tag.
	DoNotDelegate bool `mapstructure:"do_not_delegate"`

	// Raw collects every field the struct does not model.
	Raw map[string]any `mapstructure:",remain"`
}

// State returns the candidate's current position in the workflow.
func (c WorkItemCandidate) State() StateTuple {
	return StateTuple{Status: c.Status, Stage: c.Stage}
}

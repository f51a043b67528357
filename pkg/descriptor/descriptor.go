package descriptor

import (
	"fmt"
	"sort"

	"github.com/aretw0/foreman/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Metadata carries the descriptor's identifying information.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Roles       []string `json:"roles"`
}

// Descriptor is the loaded workflow definition: a frozen graph of states,
// commands, and invariants. It owns all Command/Invariant/StateTuple values
// for the process lifetime and is read-only after Load.
type Descriptor struct {
	Version  string
	Metadata Metadata
	Statuses []string
	Stages   []string
	Terminal []string

	states       map[string]domain.StateTuple
	commands     map[string]domain.Command
	commandOrder []string
	invariants   map[string]domain.Invariant
}

// Intermediate shapes for decoding the raw document. Commands carry their
// from/to refs as `any` because a StateRef is either an alias string or an
// inline {status, stage} object.
type rawDoc struct {
	Version        string                `json:"version"`
	Metadata       Metadata              `json:"metadata"`
	Status         []string              `json:"status"`
	Stage          []string              `json:"stage"`
	States         map[string]rawState   `json:"states"`
	TerminalStates []string              `json:"terminal_states"`
	Invariants     []rawInvariant        `json:"invariants"`
	Commands       map[string]rawCommand `json:"commands"`
}

type rawState struct {
	Status string `json:"status"`
	Stage  string `json:"stage"`
}

type rawInvariant struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	When        []string `json:"when"`
	Logic       string   `json:"logic"`
}

type rawCommand struct {
	Description string            `json:"description"`
	Actor       string            `json:"actor"`
	From        []any             `json:"from"`
	To          any               `json:"to"`
	Pre         []string          `json:"pre"`
	Post        []string          `json:"post"`
	Inputs      []string          `json:"inputs"`
	DispatchMap map[string]string `json:"dispatch_map"`
	Effects     *domain.Effects   `json:"effects"`
}

// build validates the document structurally, decodes it, and resolves every
// reference eagerly so later lookups cannot fail on a malformed descriptor.
func build(raw map[string]any) (*Descriptor, error) {
	doc, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	// 1. Structural validation (all violations at once, with field paths).
	if err := validateStructure(doc); err != nil {
		return nil, err
	}

	// 2. Decode into the typed shape.
	var rd rawDoc
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &rd,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}

	d := &Descriptor{
		Version:    rd.Version,
		Metadata:   rd.Metadata,
		Statuses:   rd.Status,
		Stages:     rd.Stage,
		Terminal:   rd.TerminalStates,
		states:     make(map[string]domain.StateTuple, len(rd.States)),
		commands:   make(map[string]domain.Command, len(rd.Commands)),
		invariants: make(map[string]domain.Invariant, len(rd.Invariants)),
	}

	// 3. Semantic validation: resolve everything, collecting all errors.
	aggr := &AggregateError{}
	fail := func(path, reason string, value any) {
		aggr.Errors = append(aggr.Errors, &ValidationError{Path: path, Reason: reason, Value: value})
	}

	statuses := stringSet(rd.Status)
	stages := stringSet(rd.Stage)

	for alias, st := range rd.States {
		if !statuses[st.Status] {
			fail("states."+alias+".status", "not a declared status", st.Status)
		}
		if !stages[st.Stage] {
			fail("states."+alias+".stage", "not a declared stage", st.Stage)
		}
		d.states[alias] = domain.StateTuple{Status: st.Status, Stage: st.Stage}
	}

	for _, inv := range rd.Invariants {
		if _, dup := d.invariants[inv.Name]; dup {
			fail("invariants."+inv.Name, "duplicate invariant name", nil)
		}
		when := inv.When
		if len(when) == 0 {
			when = []string{"pre"}
		}
		d.invariants[inv.Name] = domain.Invariant{
			Name:        inv.Name,
			Description: inv.Description,
			When:        when,
			Logic:       inv.Logic,
		}
	}

	for name, rc := range rd.Commands {
		path := "commands." + name
		cmd := domain.Command{
			Name:        name,
			Description: rc.Description,
			Actor:       rc.Actor,
			Pre:         rc.Pre,
			Post:        rc.Post,
			DispatchMap: rc.DispatchMap,
			Effects:     rc.Effects,
		}
		for i, f := range rc.From {
			ref, err := d.decodeStateRef(f)
			if err != nil {
				fail(fmt.Sprintf("%s.from.%d", path, i), err.Error(), f)
				continue
			}
			cmd.From = append(cmd.From, ref)
		}
		to, err := d.decodeStateRef(rc.To)
		if err != nil {
			fail(path+".to", err.Error(), rc.To)
		} else {
			cmd.To = to
		}
		for i, inv := range rc.Pre {
			if _, ok := d.invariants[inv]; !ok {
				fail(fmt.Sprintf("%s.pre.%d", path, i), "references undefined invariant", inv)
			}
		}
		for i, inv := range rc.Post {
			if _, ok := d.invariants[inv]; !ok {
				fail(fmt.Sprintf("%s.post.%d", path, i), "references undefined invariant", inv)
			}
		}
		d.commands[name] = cmd
		d.commandOrder = append(d.commandOrder, name)
	}
	sort.Strings(d.commandOrder)

	for i, alias := range rd.TerminalStates {
		if _, ok := d.states[alias]; !ok {
			fail(fmt.Sprintf("terminal_states.%d", i), "references undefined state", alias)
		}
	}

	if len(aggr.Errors) > 0 {
		return nil, aggr
	}
	return d, nil
}

// decodeStateRef turns a raw from/to entry into a StateRef, checking that it
// resolves against the declared states.
func (d *Descriptor) decodeStateRef(v any) (domain.StateRef, error) {
	switch ref := v.(type) {
	case string:
		if _, ok := d.states[ref]; !ok {
			return nil, fmt.Errorf("unknown state alias %q", ref)
		}
		return domain.AliasRef(ref), nil
	case map[string]any:
		status, _ := ref["status"].(string)
		stage, _ := ref["stage"].(string)
		if status == "" || stage == "" {
			return nil, fmt.Errorf("inline state must carry status and stage")
		}
		return domain.TupleRef(domain.StateTuple{Status: status, Stage: stage}), nil
	default:
		return nil, fmt.Errorf("state reference must be an alias or an inline state")
	}
}

// ResolveAlias maps a human-readable state name to its tuple. Unknown names
// fail loudly with domain.ErrUnknownAlias.
func (d *Descriptor) ResolveAlias(name string) (domain.StateTuple, error) {
	st, ok := d.states[name]
	if !ok {
		return domain.StateTuple{}, fmt.Errorf("%w: %q", domain.ErrUnknownAlias, name)
	}
	return st, nil
}

// ResolveStateRef resolves either kind of StateRef to its tuple. Alias refs
// were verified at load time, so resolution cannot fail here.
func (d *Descriptor) ResolveStateRef(ref domain.StateRef) domain.StateTuple {
	switch r := ref.(type) {
	case domain.AliasRef:
		return d.states[string(r)]
	case domain.TupleRef:
		return domain.StateTuple(r)
	default:
		return domain.StateTuple{}
	}
}

// GetCommand looks up a command by name.
func (d *Descriptor) GetCommand(name string) (domain.Command, error) {
	cmd, ok := d.commands[name]
	if !ok {
		return domain.Command{}, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, name)
	}
	return cmd, nil
}

// GetInvariant looks up a single invariant by name.
func (d *Descriptor) GetInvariant(name string) (domain.Invariant, error) {
	inv, ok := d.invariants[name]
	if !ok {
		return domain.Invariant{}, fmt.Errorf("%w: %q", domain.ErrUnknownInvariant, name)
	}
	return inv, nil
}

// GetInvariants resolves a list of invariant names, preserving order.
func (d *Descriptor) GetInvariants(names []string) ([]domain.Invariant, error) {
	out := make([]domain.Invariant, 0, len(names))
	for _, name := range names {
		inv, err := d.GetInvariant(name)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// Invariants returns all invariants in name-sorted order.
func (d *Descriptor) Invariants() []domain.Invariant {
	names := make([]string, 0, len(d.invariants))
	for name := range d.invariants {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]domain.Invariant, 0, len(names))
	for _, name := range names {
		out = append(out, d.invariants[name])
	}
	return out
}

// Commands returns all commands in deterministic (name-sorted) order.
func (d *Descriptor) Commands() []domain.Command {
	out := make([]domain.Command, 0, len(d.commandOrder))
	for _, name := range d.commandOrder {
		out = append(out, d.commands[name])
	}
	return out
}

// CommandsForState returns the commands applicable to a given position,
// in deterministic order.
func (d *Descriptor) CommandsForState(status, stage string) []domain.Command {
	target := domain.StateTuple{Status: status, Stage: stage}
	var out []domain.Command
	for _, name := range d.commandOrder {
		cmd := d.commands[name]
		for _, ref := range cmd.From {
			if d.ResolveStateRef(ref) == target {
				out = append(out, cmd)
				break
			}
		}
	}
	return out
}

// ResolveFromStateAlias finds which of a command's from-state aliases matches
// the given tuple. The alias keys the command's dispatch template. Inline
// tuple refs carry no alias, so a match on one reports ok=false.
func (d *Descriptor) ResolveFromStateAlias(cmd domain.Command, state domain.StateTuple) (string, bool) {
	for _, ref := range cmd.From {
		if d.ResolveStateRef(ref) != state {
			continue
		}
		if alias, ok := ref.(domain.AliasRef); ok {
			return string(alias), true
		}
		return "", false
	}
	return "", false
}

// FromStateAliases returns the display names of a command's from-states:
// the alias for alias refs, "status/stage" for inline tuples. Used in
// rejection messages.
func (d *Descriptor) FromStateAliases(cmd domain.Command) []string {
	out := make([]string, 0, len(cmd.From))
	for _, ref := range cmd.From {
		if alias, ok := ref.(domain.AliasRef); ok {
			out = append(out, string(alias))
			continue
		}
		out = append(out, d.ResolveStateRef(ref).String())
	}
	return out
}

// IsTerminal reports whether the alias names a terminal state.
func (d *Descriptor) IsTerminal(alias string) bool {
	for _, t := range d.Terminal {
		if t == alias {
			return true
		}
	}
	return false
}

// StateAliases returns all state aliases in sorted order.
func (d *Descriptor) StateAliases() []string {
	out := make([]string, 0, len(d.states))
	for alias := range d.states {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

func stringSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

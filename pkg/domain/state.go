package domain

import "fmt"

// StateTuple is the atomic position of a work item in the workflow.
// It is an immutable value type; equality is structural.
type StateTuple struct {
	Status string `json:"status" yaml:"status"`
	Stage  string `json:"stage" yaml:"stage"`
}

func (s StateTuple) String() string {
	return fmt.Sprintf("%s/%s", s.Status, s.Stage)
}

// StateRef references a workflow state, either by alias ("idea") or as an
// inline tuple. Callers never branch on the concrete type themselves; the
// descriptor resolves refs through a single ResolveStateRef entry point.
type StateRef interface {
	stateRef()
}

// AliasRef is a StateRef naming a state by its human-readable alias.
type AliasRef string

func (AliasRef) stateRef() {}

// TupleRef is a StateRef carrying an inline (status, stage) tuple.
type TupleRef StateTuple

func (TupleRef) stateRef() {}

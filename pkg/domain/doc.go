/*
Package domain contains the core domain models for the Foreman delegation engine.

It defines the fundamental entities of the workflow: state tuples, commands,
invariants, work item candidates, and the structured result types every engine
pass produces. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - StateTuple: the (status, stage) position of a work item in the workflow.
  - StateRef: a reference to a state, either by alias or as an inline tuple.
  - Command: a named transition with from-states, a target, guards and dispatch templates.
  - Invariant: a named guard condition evaluated before or after a transition.
  - WorkItemCandidate: a work item considered for delegation in one selection cycle.
  - EngineResult: the terminal artifact of one engine invocation.
*/
package domain

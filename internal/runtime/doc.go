/*
Package runtime hosts the delegation engine: the two-mode state machine that
ties the descriptor, selector, guard evaluator, and dispatcher together.

Mode A (ProcessDelegation) runs one delegation pass: pick or accept a work
item, confirm its from-state, evaluate pre-invariants, apply the transition
(retrying the update once), resolve the dispatch template, and spawn the
worker. Mode B (ProcessTransition) services an agent callback: confirm the
requested transition exists, evaluate post-invariants, and apply it.

The engine is stateless and re-entrant: each invocation is a self-contained
pass over externally supplied data. Nothing throws across the engine
boundary; every outcome is a structured EngineResult.
*/
package runtime

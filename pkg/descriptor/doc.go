/*
Package descriptor loads and validates the declarative workflow definition.

A descriptor (YAML or JSON) enumerates the valid (status, stage) states, the
commands that move work items between them, and the invariants guarding each
transition. Load parses the source, validates it structurally against the
embedded JSON Schema, and resolves every reference eagerly, so lookups on a
loaded Descriptor cannot fail on a malformed definition.

Validation reports all violations at once, each tagged with a field path.
File-not-found and unsupported-format are distinct error kinds from
validation failure (a malformed descriptor is a deployment-time defect).
The loaded Descriptor is a frozen graph: read-only for the process lifetime.
*/
package descriptor

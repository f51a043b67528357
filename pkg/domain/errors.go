package domain

import "errors"

// ErrUnknownAlias is returned when a state alias cannot be resolved.
var ErrUnknownAlias = errors.New("unknown state alias")

// ErrUnknownCommand is returned when a command name is not in the descriptor.
var ErrUnknownCommand = errors.New("unknown command")

// ErrUnknownInvariant is returned when an invariant name is not in the
// descriptor. This indicates a descriptor/caller mismatch, not a failed
// guard evaluation.
var ErrUnknownInvariant = errors.New("unknown invariant")

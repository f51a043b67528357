package runtime

import "github.com/aretw0/foreman/pkg/domain"

// Config tunes one engine instance. Zero values mean: run the default
// command, follow the natural proceed decision, mutate state normally.
type Config struct {
	// Command names the descriptor command Mode A applies.
	// Defaults to domain.DefaultCommand.
	Command string

	// FallbackMode overrides the proceed decision. Empty behaves like
	// accept-recommendation.
	FallbackMode domain.FallbackMode

	// AuditOnly makes every pass a dry run: the engine never calls the
	// updater, comment writer, or dispatcher and always returns SKIPPED.
	AuditOnly bool
}

func (c Config) command() string {
	if c.Command == "" {
		return domain.DefaultCommand
	}
	return c.Command
}

package domain

// FallbackMode is an operator-level override that short-circuits the normal
// proceed decision at the dispatch-template-resolution step.
type FallbackMode string

const (
	// FallbackAcceptRecommendation follows the natural from-state mapping.
	FallbackAcceptRecommendation FallbackMode = "accept-recommendation"

	// FallbackHold skips delegation entirely.
	FallbackHold FallbackMode = "hold"

	// FallbackDiscussOptions currently degrades to hold behavior.
	FallbackDiscussOptions FallbackMode = "discuss-options"

	// FallbackAutoAccept dispatches via the literal "accept" template key.
	FallbackAutoAccept FallbackMode = "auto-accept"

	// FallbackAutoDecline dispatches via the literal "decline" template key.
	FallbackAutoDecline FallbackMode = "auto-decline"
)

// DefaultCommand is the command the selector and engine use when the caller
// does not configure one.
const DefaultCommand = "delegate"

// DispatchPlaceholder is the only placeholder substituted in dispatch
// templates; it expands to the work item identifier.
const DispatchPlaceholder = "{id}"

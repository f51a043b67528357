package domain

import "time"

// EngineStatus is the terminal status of one engine invocation.
type EngineStatus string

const (
	StatusSuccess         EngineStatus = "success"
	StatusSkipped         EngineStatus = "skipped"
	StatusNoCandidates    EngineStatus = "no_candidates"
	StatusRejected        EngineStatus = "rejected"
	StatusInvariantFailed EngineStatus = "invariant_failed"
	StatusUpdateFailed    EngineStatus = "update_failed"
	StatusDispatchFailed  EngineStatus = "dispatch_failed"
	StatusError           EngineStatus = "error"
)

// Rejection records why one candidate was passed over.
type Rejection struct {
	Candidate WorkItemCandidate `json:"candidate"`
	Reason    string            `json:"reason"`
}

// CandidateResult is the audit trail of one selection cycle. Even when
// nothing is selected, it explains every candidate's fate.
type CandidateResult struct {
	Selected         *WorkItemCandidate  `json:"selected,omitempty"`
	Candidates       []WorkItemCandidate `json:"candidates"`
	Rejections       []Rejection         `json:"rejections"`
	GlobalRejections []string            `json:"globalRejections,omitempty"`
}

// SingleInvariantResult is the outcome of evaluating one named invariant.
type SingleInvariantResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// InvariantResult aggregates invariant outcomes. Results are ordered to
// match the invocation order of the invariant names.
type InvariantResult struct {
	Passed  bool                    `json:"passed"`
	Results []SingleInvariantResult `json:"results"`
}

// FailureReasons returns the reasons of all failed invariants, in order.
func (r InvariantResult) FailureReasons() []string {
	var reasons []string
	for _, s := range r.Results {
		if !s.Passed {
			reasons = append(reasons, s.Reason)
		}
	}
	return reasons
}

// DispatchResult is produced exactly once per dispatch attempt. The
// dispatcher never retries internally; retry policy belongs to the engine
// (which retries only the state-update step, never dispatch).
type DispatchResult struct {
	Success     bool      `json:"success"`
	PID         *int      `json:"pid,omitempty"`
	ContainerID *string   `json:"containerId,omitempty"`
	Error       *string   `json:"error,omitempty"`
	Command     string    `json:"command"`
	WorkItemID  string    `json:"workItemId"`
	Timestamp   time.Time `json:"timestamp"`
}

// EngineResult is the terminal artifact of one engine invocation.
//
// Sub-results are populated only when the corresponding step actually ran:
// Dispatch is non-nil iff a dispatch was attempted, Invariants non-nil iff
// guards were evaluated, Candidates non-nil iff the selector ran.
type EngineResult struct {
	Status     EngineStatus     `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	WorkItemID string           `json:"workItemId,omitempty"`
	Command    string           `json:"command,omitempty"`
	Action     string           `json:"action,omitempty"`
	Dispatch   *DispatchResult  `json:"dispatch,omitempty"`
	Invariants *InvariantResult `json:"invariants,omitempty"`
	Candidates *CandidateResult `json:"candidates,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

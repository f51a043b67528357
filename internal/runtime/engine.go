package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/foreman/pkg/descriptor"
	"github.com/aretw0/foreman/pkg/domain"
	"github.com/aretw0/foreman/pkg/guard"
	"github.com/aretw0/foreman/pkg/ports"
)

// CandidateSelector picks the next eligible work item. pkg/selector
// satisfies this; tests swap in fakes.
type CandidateSelector interface {
	Select(ctx context.Context) domain.CandidateResult
}

// GuardEvaluator runs named invariants against projected fields.
type GuardEvaluator interface {
	Evaluate(ctx context.Context, names []string, fields guard.Fields, failFast bool) (domain.InvariantResult, error)
}

// Engine is the delegation orchestrator. It owns no persistent state; every
// call is a fresh pass over externally supplied data.
type Engine struct {
	desc       *descriptor.Descriptor
	selector   CandidateSelector
	evaluator  GuardEvaluator
	fetcher    ports.WorkItemFetcher
	updater    ports.Updater
	commenter  ports.CommentWriter
	notifier   ports.Notifier
	recorder   ports.DispatchRecorder
	dispatcher ports.Dispatcher
	cfg        Config
	logger     *slog.Logger
}

// Deps bundles the engine's collaborators. Notifier, Recorder, and
// Commenter may be nil; they default to the Null implementations.
type Deps struct {
	Descriptor *descriptor.Descriptor
	Selector   CandidateSelector
	Evaluator  GuardEvaluator
	Fetcher    ports.WorkItemFetcher
	Updater    ports.Updater
	Commenter  ports.CommentWriter
	Notifier   ports.Notifier
	Recorder   ports.DispatchRecorder
	Dispatcher ports.Dispatcher
	Logger     *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, cfg Config) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = ports.NullNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = ports.NullRecorder{}
	}
	if deps.Commenter == nil {
		deps.Commenter = ports.NullCommentWriter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		desc:       deps.Descriptor,
		selector:   deps.Selector,
		evaluator:  deps.Evaluator,
		fetcher:    deps.Fetcher,
		updater:    deps.Updater,
		commenter:  deps.Commenter,
		notifier:   deps.Notifier,
		recorder:   deps.Recorder,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     deps.Logger,
	}
}

// ProcessDelegation runs one Mode A pass using the selector.
func (e *Engine) ProcessDelegation(ctx context.Context) domain.EngineResult {
	if result, done := e.preflight(); done {
		return result
	}

	// Candidate selection, with full audit trail.
	candidates := e.selector.Select(ctx)
	if candidates.Selected == nil {
		reason := "no eligible candidates"
		if len(candidates.GlobalRejections) > 0 {
			reason = strings.Join(candidates.GlobalRejections, "; ")
		}
		e.notify(ctx, "info", "Agents idle", reason)
		return e.terminal(domain.EngineResult{
			Status:     domain.StatusNoCandidates,
			Reason:     reason,
			Candidates: &candidates,
		})
	}

	cand := *candidates.Selected
	result := e.delegate(ctx, cand.ID, cand.State(), e.projectFields(ctx, cand.ID, guard.FieldsFromCandidate(cand)))
	result.Candidates = &candidates
	return result
}

// ProcessDelegationFor runs a Mode A pass against an explicit work item,
// bypassing the selector. The item's state is re-derived from the store, so
// the from-state check still applies.
func (e *Engine) ProcessDelegationFor(ctx context.Context, workItemID string) domain.EngineResult {
	if result, done := e.preflight(); done {
		return result
	}

	payload, err := e.fetcher.FetchWorkItem(ctx, workItemID)
	if err != nil {
		return e.terminal(domain.EngineResult{
			Status:     domain.StatusError,
			Reason:     fmt.Sprintf("cannot fetch work item: %v", err),
			WorkItemID: workItemID,
		})
	}
	fields := guard.BuildFields(payload)
	return e.delegate(ctx, workItemID, domain.StateTuple{Status: fields.Status, Stage: fields.Stage}, fields)
}

// preflight handles the audit-only and early-fallback short circuits shared
// by both Mode A entry points.
func (e *Engine) preflight() (domain.EngineResult, bool) {
	if e.cfg.AuditOnly {
		return e.terminal(domain.EngineResult{
			Status: domain.StatusSkipped,
			Reason: "audit-only mode: no action taken",
		}), true
	}
	switch e.cfg.FallbackMode {
	case domain.FallbackHold:
		return e.terminal(domain.EngineResult{
			Status: domain.StatusSkipped,
			Reason: "fallback mode hold: delegation paused by operator",
		}), true
	case domain.FallbackDiscussOptions:
		// Not fully implemented; degrades to hold on purpose.
		return e.terminal(domain.EngineResult{
			Status: domain.StatusSkipped,
			Reason: "fallback mode discuss-options: treated as hold",
		}), true
	}
	return domain.EngineResult{}, false
}

// delegate is the shared Mode A pipeline from a known (id, state) pair.
func (e *Engine) delegate(ctx context.Context, workItemID string, current domain.StateTuple, fields guard.Fields) domain.EngineResult {
	result := domain.EngineResult{
		WorkItemID: workItemID,
		Command:    e.cfg.command(),
	}

	cmd, err := e.desc.GetCommand(e.cfg.command())
	if err != nil {
		result.Status = domain.StatusError
		result.Reason = err.Error()
		return e.terminal(result)
	}

	// 1. Confirm from-state. The selector already filtered on it, but the
	// state is re-derived here so explicit-target calls get the same check.
	if !e.inFromStates(cmd, current) {
		result.Status = domain.StatusRejected
		result.Reason = fmt.Sprintf("state %s is not a valid source for %q (valid states: [%s])",
			current, cmd.Name, quoteJoin(e.desc.FromStateAliases(cmd)))
		return e.terminal(result)
	}

	// 2. Pre-invariants. No state mutation happens on failure.
	if len(cmd.Pre) > 0 {
		invResult, err := e.evaluator.Evaluate(ctx, cmd.Pre, fields, false)
		if err != nil {
			result.Status = domain.StatusError
			result.Reason = err.Error()
			return e.terminal(result)
		}
		result.Invariants = &invResult
		if !invResult.Passed {
			reasons := strings.Join(invResult.FailureReasons(), "; ")
			result.Status = domain.StatusInvariantFailed
			result.Reason = reasons
			e.comment(ctx, workItemID, "Delegation blocked by invariants: "+reasons)
			e.notify(ctx, "warning", "Delegation blocked", fmt.Sprintf("%s: %s", workItemID, reasons))
			return e.terminal(result)
		}
	}

	// 3. Resolve the dispatch action and template before mutating anything,
	// so a descriptor gap cannot strand the item mid-transition.
	action, template, err := e.resolveTemplate(cmd, current)
	if err != nil {
		result.Status = domain.StatusError
		result.Reason = err.Error()
		return e.terminal(result)
	}
	result.Action = action

	// 4. Apply the transition, retrying the update exactly once. State is
	// advanced before dispatch on purpose: a dispatch failure leaves the
	// item visibly claimed instead of silently stuck in its prior state.
	to := e.desc.ResolveStateRef(cmd.To)
	if err := e.updateWithRetry(ctx, workItemID, to); err != nil {
		result.Status = domain.StatusUpdateFailed
		result.Reason = fmt.Sprintf("state update failed after retry: %v", err)
		e.notify(ctx, "error", "State update failed", fmt.Sprintf("%s: %v", workItemID, err))
		return e.terminal(result)
	}

	// 5. Dispatch, fire-and-forget.
	command := strings.ReplaceAll(template, domain.DispatchPlaceholder, workItemID)
	dispatch := e.dispatcher.Dispatch(ctx, command, workItemID)
	result.Dispatch = &dispatch
	if !dispatch.Success {
		reason := "dispatch failed"
		if dispatch.Error != nil {
			reason = *dispatch.Error
		}
		result.Status = domain.StatusDispatchFailed
		result.Reason = reason
		e.notify(ctx, "error", "Dispatch failed", fmt.Sprintf("%s: %s", workItemID, reason))
		return e.terminal(result)
	}

	// 6. Record and celebrate.
	if err := e.recorder.RecordDispatch(ctx, dispatch); err != nil {
		e.logger.Error("cannot record dispatch", "err", err, "work_item", workItemID)
	}
	e.notify(ctx, "success", "Work item delegated",
		fmt.Sprintf("%s via %s (%s)", workItemID, cmd.Name, action))

	result.Status = domain.StatusSuccess
	return e.terminal(result)
}

// ProcessTransition services a Mode B agent callback: the agent reports its
// work done and requests a move to targetStage. Post-invariant failure
// refuses the transition; it is never rolled back because it was never
// applied.
func (e *Engine) ProcessTransition(ctx context.Context, workItemID, targetStage string) domain.EngineResult {
	if e.cfg.AuditOnly {
		return e.terminal(domain.EngineResult{
			Status:     domain.StatusSkipped,
			Reason:     "audit-only mode: no action taken",
			WorkItemID: workItemID,
		})
	}

	result := domain.EngineResult{WorkItemID: workItemID}

	payload, err := e.fetcher.FetchWorkItem(ctx, workItemID)
	if err != nil {
		result.Status = domain.StatusError
		result.Reason = fmt.Sprintf("cannot fetch work item: %v", err)
		return e.terminal(result)
	}
	fields := guard.BuildFields(payload)
	current := domain.StateTuple{Status: fields.Status, Stage: fields.Stage}

	// First command whose from-states include the current state and whose
	// target resolves to the requested stage.
	var cmd domain.Command
	var found bool
	for _, c := range e.desc.Commands() {
		if e.inFromStates(c, current) && e.desc.ResolveStateRef(c.To).Stage == targetStage {
			cmd = c
			found = true
			break
		}
	}
	if !found {
		result.Status = domain.StatusRejected
		result.Reason = fmt.Sprintf("no command transitions %s to stage %q", current, targetStage)
		return e.terminal(result)
	}
	result.Command = cmd.Name
	if alias, ok := e.desc.ResolveFromStateAlias(cmd, current); ok {
		result.Action = alias
	}

	if len(cmd.Post) > 0 {
		invResult, err := e.evaluator.Evaluate(ctx, cmd.Post, fields, false)
		if err != nil {
			result.Status = domain.StatusError
			result.Reason = err.Error()
			return e.terminal(result)
		}
		result.Invariants = &invResult
		if !invResult.Passed {
			reasons := strings.Join(invResult.FailureReasons(), "; ")
			result.Status = domain.StatusInvariantFailed
			result.Reason = reasons
			e.comment(ctx, workItemID,
				fmt.Sprintf("Transition to %q refused by post-invariants: %s", targetStage, reasons))
			return e.terminal(result)
		}
	}

	to := e.desc.ResolveStateRef(cmd.To)
	if err := e.updateWithRetry(ctx, workItemID, to); err != nil {
		result.Status = domain.StatusUpdateFailed
		result.Reason = fmt.Sprintf("state update failed after retry: %v", err)
		e.notify(ctx, "error", "State update failed", fmt.Sprintf("%s: %v", workItemID, err))
		return e.terminal(result)
	}

	e.notify(ctx, "success", "Work item transitioned",
		fmt.Sprintf("%s -> %s via %s", workItemID, to, cmd.Name))
	result.Status = domain.StatusSuccess
	return e.terminal(result)
}

// resolveTemplate picks the dispatch-map key. Fallback modes override the
// proceed decision here and only here: auto-accept/auto-decline look up the
// literal "accept"/"decline" pseudo keys, which a descriptor may not define
// (an ERROR, not a crash). Otherwise the key is the matched from-state alias.
func (e *Engine) resolveTemplate(cmd domain.Command, current domain.StateTuple) (string, string, error) {
	var key string
	switch e.cfg.FallbackMode {
	case domain.FallbackAutoAccept:
		key = "accept"
	case domain.FallbackAutoDecline:
		key = "decline"
	default:
		alias, ok := e.desc.ResolveFromStateAlias(cmd, current)
		if !ok {
			return "", "", fmt.Errorf("no from-state alias for %s on command %q: cannot pick a dispatch template", current, cmd.Name)
		}
		key = alias
	}

	template, ok := cmd.DispatchMap[key]
	if !ok {
		return "", "", fmt.Errorf("command %q has no dispatch template for %q", cmd.Name, key)
	}
	return key, template, nil
}

// updateWithRetry calls the updater, retrying exactly once on failure.
func (e *Engine) updateWithRetry(ctx context.Context, workItemID string, to domain.StateTuple) error {
	err := e.updater.UpdateState(ctx, workItemID, to)
	if err == nil {
		return nil
	}
	e.logger.Warn("state update failed, retrying once", "err", err, "work_item", workItemID)
	return e.updater.UpdateState(ctx, workItemID, to)
}

// projectFields loads the full item (with comments) for guard evaluation.
// A fetch failure degrades to the candidate-derived fallback rather than
// aborting: the invariants then judge what they can see.
func (e *Engine) projectFields(ctx context.Context, workItemID string, fallback guard.Fields) guard.Fields {
	payload, err := e.fetcher.FetchWorkItem(ctx, workItemID)
	if err != nil {
		e.logger.Warn("cannot fetch work item for invariant evaluation", "err", err, "work_item", workItemID)
		return fallback
	}
	return guard.BuildFields(payload)
}

func (e *Engine) inFromStates(cmd domain.Command, state domain.StateTuple) bool {
	for _, ref := range cmd.From {
		if e.desc.ResolveStateRef(ref) == state {
			return true
		}
	}
	return false
}

func (e *Engine) notify(ctx context.Context, level, title, body string) {
	if err := e.notifier.Notify(ctx, ports.Notification{Level: level, Title: title, Body: body}); err != nil {
		e.logger.Warn("notification delivery failed", "err", err, "title", title)
	}
}

func (e *Engine) comment(ctx context.Context, workItemID, body string) {
	if err := e.commenter.WriteComment(ctx, workItemID, body); err != nil {
		e.logger.Warn("cannot write work item comment", "err", err, "work_item", workItemID)
	}
}

func (e *Engine) terminal(result domain.EngineResult) domain.EngineResult {
	result.Timestamp = time.Now().UTC()
	e.logger.Info("engine pass finished",
		"status", string(result.Status),
		"work_item", result.WorkItemID,
		"reason", result.Reason)
	return result
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(quoted, ", ")
}

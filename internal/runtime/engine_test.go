package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/foreman/internal/adapters/memory"
	"github.com/aretw0/foreman/internal/runtime"
	"github.com/aretw0/foreman/pkg/descriptor"
	"github.com/aretw0/foreman/pkg/domain"
	"github.com/aretw0/foreman/pkg/guard"
	"github.com/aretw0/foreman/pkg/ports"
	"github.com/aretw0/foreman/pkg/selector"
)

const workflowYAML = `
version: "1.0.0"
metadata:
  name: test-workflow
status: [open, in-progress, closed]
stage: [idea, delegated, review, done]
states:
  idea: {status: open, stage: idea}
  delegated: {status: in-progress, stage: delegated}
  review: {status: in-progress, stage: review}
  done: {status: closed, stage: done}
terminal_states: [done]
invariants:
  - name: has_description
    when: [pre]
    logic: length(description) > 20
  - name: no_in_progress_items
    when: [pre]
    logic: count(work_items, status="in-progress") == 0
  - name: reviewed
    when: [post]
    logic: regex(comments, "LGTM|approved")
commands:
  delegate:
    actor: scheduler
    from: [idea]
    to: delegated
    pre: [has_description, no_in_progress_items]
    dispatch_map:
      idea: "agent run {id}"
  complete:
    actor: agent
    from: [delegated, review]
    to: done
    post: [reviewed]
`

type fakeDispatcher struct {
	commands []string
	ids      []string
	fail     bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, command, workItemID string) domain.DispatchResult {
	d.commands = append(d.commands, command)
	d.ids = append(d.ids, workItemID)
	result := domain.DispatchResult{
		Command:    command,
		WorkItemID: workItemID,
		Timestamp:  time.Now().UTC(),
	}
	if d.fail {
		msg := "spawn failed: no such file or directory"
		result.Error = &msg
		return result
	}
	pid := 4242
	result.Success = true
	result.PID = &pid
	return result
}

type fakeNotifier struct {
	notes []ports.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, note ports.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

type fakeRecorder struct {
	records []domain.DispatchResult
}

func (r *fakeRecorder) RecordDispatch(ctx context.Context, result domain.DispatchResult) error {
	r.records = append(r.records, result)
	return nil
}

// flakyUpdater fails the first n calls, then delegates to the store.
type flakyUpdater struct {
	inner    ports.Updater
	failures int
	calls    int
}

func (u *flakyUpdater) UpdateState(ctx context.Context, id string, to domain.StateTuple) error {
	u.calls++
	if u.calls <= u.failures {
		return errors.New("store unavailable")
	}
	return u.inner.UpdateState(ctx, id, to)
}

type harness struct {
	store      *memory.Store
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	recorder   *fakeRecorder
	updater    *flakyUpdater
	engine     *runtime.Engine
}

func newHarness(t *testing.T, cfg runtime.Config) *harness {
	t.Helper()
	desc, err := descriptor.ParseYAML([]byte(workflowYAML))
	require.NoError(t, err)

	logger := slogt.New(t)
	store := memory.New()
	h := &harness{
		store:      store,
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		recorder:   &fakeRecorder{},
		updater:    &flakyUpdater{inner: store},
	}
	h.engine = runtime.NewEngine(runtime.Deps{
		Descriptor: desc,
		Selector:   selector.New(desc, store, store, selector.Config{}, logger),
		Evaluator:  guard.NewEvaluator(desc, store, logger),
		Fetcher:    store,
		Updater:    h.updater,
		Commenter:  store,
		Notifier:   h.notifier,
		Recorder:   h.recorder,
		Dispatcher: h.dispatcher,
		Logger:     logger,
	}, cfg)
	return h
}

func idea(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       "Ship the widget",
		"description": "A description long enough to clear the delegation bar.",
		"status":      "open",
		"stage":       "idea",
	}
}

func TestProcessDelegation_Success(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	h.store.Add(idea("WL-1"))

	result := h.engine.ProcessDelegation(context.Background())

	require.Equal(t, domain.StatusSuccess, result.Status, "reason: %s", result.Reason)
	assert.Equal(t, "WL-1", result.WorkItemID)
	assert.Equal(t, "delegate", result.Command)
	assert.Equal(t, "idea", result.Action)

	require.Len(t, h.dispatcher.commands, 1)
	assert.Equal(t, "agent run WL-1", h.dispatcher.commands[0])

	item := h.store.Item("WL-1")
	assert.Equal(t, "in-progress", item["status"])
	assert.Equal(t, "delegated", item["stage"])

	// State advances before dispatch, and the dispatch is recorded.
	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, "WL-1", h.recorder.records[0].WorkItemID)

	require.NotNil(t, result.Dispatch)
	assert.True(t, result.Dispatch.Success)
	require.NotNil(t, result.Candidates)
	assert.NotNil(t, result.Candidates.Selected)
}

func TestProcessDelegation_NoCandidates(t *testing.T) {
	h := newHarness(t, runtime.Config{})

	result := h.engine.ProcessDelegation(context.Background())

	assert.Equal(t, domain.StatusNoCandidates, result.Status)
	assert.Empty(t, h.dispatcher.commands)

	require.NotEmpty(t, h.notifier.notes)
	assert.Equal(t, "info", h.notifier.notes[0].Level)
}

func TestProcessDelegation_RejectedStage(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	item := idea("WL-7")
	item["status"] = "closed"
	item["stage"] = "done"
	h.store.Add(item)

	result := h.engine.ProcessDelegationFor(context.Background(), "WL-7")

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Contains(t, result.Reason, `"idea"`)
	assert.Empty(t, h.dispatcher.commands)
	assert.Equal(t, 0, h.updater.calls)
}

func TestProcessDelegation_AuditOnly(t *testing.T) {
	h := newHarness(t, runtime.Config{AuditOnly: true})
	h.store.Add(idea("WL-1"))

	result := h.engine.ProcessDelegation(context.Background())

	assert.Equal(t, domain.StatusSkipped, result.Status)
	assert.Empty(t, h.dispatcher.commands)
	assert.Equal(t, 0, h.updater.calls)
	assert.Empty(t, h.store.Comments("WL-1"))

	// Audit-only passes are idempotent.
	again := h.engine.ProcessDelegation(context.Background())
	assert.Equal(t, domain.StatusSkipped, again.Status)
	assert.Equal(t, "open", h.store.Item("WL-1")["status"])
}

func TestProcessDelegation_HoldFallback(t *testing.T) {
	for _, mode := range []domain.FallbackMode{domain.FallbackHold, domain.FallbackDiscussOptions} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, runtime.Config{FallbackMode: mode})
			h.store.Add(idea("WL-1"))

			result := h.engine.ProcessDelegation(context.Background())

			assert.Equal(t, domain.StatusSkipped, result.Status)
			assert.Empty(t, h.dispatcher.commands)
			assert.Equal(t, 0, h.updater.calls)
		})
	}
}

func TestProcessDelegation_InvariantFailure(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	item := idea("WL-2")
	item["description"] = "too short"
	h.store.Add(item)

	result := h.engine.ProcessDelegationFor(context.Background(), "WL-2")

	require.Equal(t, domain.StatusInvariantFailed, result.Status)
	assert.Contains(t, result.Reason, "length(description)")

	// Blocked items get a comment, no state change, no dispatch.
	comments := h.store.Comments("WL-2")
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], "Delegation blocked")
	assert.Equal(t, "open", h.store.Item("WL-2")["status"])
	assert.Empty(t, h.dispatcher.commands)
	assert.Equal(t, 0, h.updater.calls)

	require.NotNil(t, result.Invariants)
	assert.False(t, result.Invariants.Passed)
}

func TestProcessDelegation_UpdateRetry(t *testing.T) {
	t.Run("recovers after one failure", func(t *testing.T) {
		h := newHarness(t, runtime.Config{})
		h.store.Add(idea("WL-1"))
		h.updater.failures = 1

		result := h.engine.ProcessDelegation(context.Background())

		assert.Equal(t, domain.StatusSuccess, result.Status)
		assert.Equal(t, 2, h.updater.calls)
		assert.Len(t, h.dispatcher.commands, 1)
	})

	t.Run("gives up after the retry", func(t *testing.T) {
		h := newHarness(t, runtime.Config{})
		h.store.Add(idea("WL-1"))
		h.updater.failures = 2

		result := h.engine.ProcessDelegation(context.Background())

		assert.Equal(t, domain.StatusUpdateFailed, result.Status)
		assert.Equal(t, 2, h.updater.calls)
		// Dispatch is never attempted when the update fails.
		assert.Empty(t, h.dispatcher.commands)
		assert.Equal(t, "open", h.store.Item("WL-1")["status"])
	})
}

func TestProcessDelegation_DispatchFailed(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	h.store.Add(idea("WL-3"))
	h.dispatcher.fail = true

	result := h.engine.ProcessDelegation(context.Background())

	require.Equal(t, domain.StatusDispatchFailed, result.Status)
	assert.Contains(t, result.Reason, "spawn failed")

	// State already advanced: the item stays visibly claimed.
	assert.Equal(t, "delegated", h.store.Item("WL-3")["stage"])
	require.NotNil(t, result.Dispatch)
	assert.False(t, result.Dispatch.Success)
	assert.Empty(t, h.recorder.records)
}

func TestProcessDelegation_AutoDeclineMissingTemplate(t *testing.T) {
	h := newHarness(t, runtime.Config{FallbackMode: domain.FallbackAutoDecline})
	h.store.Add(idea("WL-1"))

	result := h.engine.ProcessDelegation(context.Background())

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Contains(t, result.Reason, `"decline"`)
	// The template gap is caught before any mutation.
	assert.Equal(t, 0, h.updater.calls)
	assert.Empty(t, h.dispatcher.commands)
}

func TestProcessTransition_Success(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	item := idea("WL-5")
	item["status"] = "in-progress"
	item["stage"] = "review"
	h.store.Add(item)
	require.NoError(t, h.store.WriteComment(context.Background(), "WL-5", "LGTM, ship it"))

	result := h.engine.ProcessTransition(context.Background(), "WL-5", "done")

	require.Equal(t, domain.StatusSuccess, result.Status, "reason: %s", result.Reason)
	assert.Equal(t, "complete", result.Command)
	assert.Equal(t, "closed", h.store.Item("WL-5")["status"])
	assert.Equal(t, "done", h.store.Item("WL-5")["stage"])
}

func TestProcessTransition_RefusedByPostInvariant(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	item := idea("WL-5")
	item["status"] = "in-progress"
	item["stage"] = "review"
	h.store.Add(item)

	result := h.engine.ProcessTransition(context.Background(), "WL-5", "done")

	require.Equal(t, domain.StatusInvariantFailed, result.Status)

	// Refused, not rolled back: the transition never happened.
	assert.Equal(t, "review", h.store.Item("WL-5")["stage"])
	assert.Equal(t, 0, h.updater.calls)

	comments := h.store.Comments("WL-5")
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0], `Transition to "done" refused`)
}

func TestProcessTransition_NoMatchingCommand(t *testing.T) {
	h := newHarness(t, runtime.Config{})
	h.store.Add(idea("WL-6"))

	result := h.engine.ProcessTransition(context.Background(), "WL-6", "review")

	assert.Equal(t, domain.StatusRejected, result.Status)
	assert.Contains(t, result.Reason, `"review"`)
}

func TestProcessTransition_AuditOnly(t *testing.T) {
	h := newHarness(t, runtime.Config{AuditOnly: true})
	item := idea("WL-5")
	item["status"] = "in-progress"
	item["stage"] = "review"
	h.store.Add(item)

	result := h.engine.ProcessTransition(context.Background(), "WL-5", "done")

	assert.Equal(t, domain.StatusSkipped, result.Status)
	assert.Equal(t, "review", h.store.Item("WL-5")["stage"])
}

func TestProcessTransition_UnknownItem(t *testing.T) {
	h := newHarness(t, runtime.Config{})

	result := h.engine.ProcessTransition(context.Background(), "WL-404", "done")

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Contains(t, result.Reason, "WL-404")
}

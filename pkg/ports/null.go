package ports

import (
	"context"
	"time"

	"github.com/aretw0/foreman/pkg/domain"
)

// Null implementations for every port. They succeed without doing anything
// and are the defaults the engine falls back to when a collaborator is not
// wired (and the natural stand-ins for tests).

type NullNotifier struct{}

func (NullNotifier) Notify(ctx context.Context, n Notification) error { return nil }

type NullCommentWriter struct{}

func (NullCommentWriter) WriteComment(ctx context.Context, id, body string) error { return nil }

type NullRecorder struct{}

func (NullRecorder) RecordDispatch(ctx context.Context, rec domain.DispatchResult) error { return nil }

type NullUpdater struct{}

func (NullUpdater) UpdateState(ctx context.Context, id string, to domain.StateTuple) error {
	return nil
}

// NullDispatcher reports success without spawning anything.
type NullDispatcher struct{}

func (NullDispatcher) Dispatch(ctx context.Context, command, workItemID string) domain.DispatchResult {
	return domain.DispatchResult{
		Success:    true,
		Command:    command,
		WorkItemID: workItemID,
		Timestamp:  time.Now().UTC(),
	}
}

// NullQuerier always reports zero in-progress items.
type NullQuerier struct{}

func (NullQuerier) InProgressCount(ctx context.Context) (int, error) { return 0, nil }

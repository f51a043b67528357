package ports

import (
	"context"

	"github.com/aretw0/foreman/pkg/domain"
)

// CandidateFetcher returns the raw candidate payload from the external
// work-item store. The payload may hold a list under any of
// "workItems"/"work_items"/"items"/"data", or a single object under
// "workItem"/"work_item"/"item"; the selector normalizes it.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context) (any, error)
}

// WorkItemFetcher loads a single work item by id, including its comments.
type WorkItemFetcher interface {
	FetchWorkItem(ctx context.Context, id string) (map[string]any, error)
}

// Updater applies a state transition to a work item in the external store.
type Updater interface {
	UpdateState(ctx context.Context, id string, to domain.StateTuple) error
}

// CommentWriter appends a comment to a work item.
type CommentWriter interface {
	WriteComment(ctx context.Context, id, body string) error
}

// InProgressQuerier reports how many work items are currently in progress.
// It reports a single undifferentiated count.
type InProgressQuerier interface {
	InProgressCount(ctx context.Context) (int, error)
}

// Notification is a human-facing message sent through the Notifier.
type Notification struct {
	Level string `json:"level"` // "info", "warning", "error", "success"
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Notifier delivers a notification. Delivery is best-effort; the engine
// logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DispatchRecorder appends a dispatch attempt to the audit log.
type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, rec domain.DispatchResult) error
}

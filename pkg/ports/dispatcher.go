package ports

import (
	"context"

	"github.com/aretw0/foreman/pkg/domain"
)

// Dispatcher hands a resolved command off to an out-of-process worker.
//
// Implementations return immediately after the worker is started; they never
// wait for it to finish, and spawn-time errors are reported in the result,
// never raised.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string, workItemID string) domain.DispatchResult
}

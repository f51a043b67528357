// Package memory provides an in-memory work-item store for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/foreman/pkg/domain"
)

// Store holds work items, their comments, and an in-progress counter. It
// implements every store-facing port.
type Store struct {
	mu       sync.Mutex
	order    []string
	items    map[string]map[string]any
	comments map[string][]string
	active   map[string]bool

	// Error hooks for tests.
	FetchErr  error
	UpdateErr error
	QueryErr  error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		items:    make(map[string]map[string]any),
		comments: make(map[string][]string),
		active:   make(map[string]bool),
	}
}

// Add inserts a work item; fetch order follows insertion order.
func (s *Store) Add(item map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := item["id"].(string)
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// SetActive marks an item as in progress (or not).
func (s *Store) SetActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.active[id] = true
	} else {
		delete(s.active, id)
	}
}

// FetchCandidates implements ports.CandidateFetcher.
func (s *Store) FetchCandidates(ctx context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	list := make([]any, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.items[id])
	}
	return map[string]any{"workItems": list}, nil
}

// FetchWorkItem implements ports.WorkItemFetcher.
func (s *Store) FetchWorkItem(ctx context.Context, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("work item %q not found", id)
	}
	comments := make([]any, 0, len(s.comments[id]))
	for _, body := range s.comments[id] {
		comments = append(comments, map[string]any{"body": body})
	}
	return map[string]any{"workItem": item, "comments": comments}, nil
}

// UpdateState implements ports.Updater.
func (s *Store) UpdateState(ctx context.Context, id string, to domain.StateTuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("work item %q not found", id)
	}
	item["status"] = to.Status
	item["stage"] = to.Stage
	return nil
}

// WriteComment implements ports.CommentWriter.
func (s *Store) WriteComment(ctx context.Context, id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[id] = append(s.comments[id], body)
	return nil
}

// Comments returns the comments written to an item.
func (s *Store) Comments(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.comments[id]...)
}

// InProgressCount implements ports.InProgressQuerier.
func (s *Store) InProgressCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return 0, s.QueryErr
	}
	return len(s.active), nil
}

// Item returns a copy of the stored item, for assertions.
func (s *Store) Item(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[id]
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// Package redis backs the work-item store ports with Redis.
//
// Layout (all keys under a configurable prefix):
//
//	queue          list of work item ids, in delegation order
//	item:<id>      JSON document of the work item
//	comments:<id>  list of comment bodies
//	active         set of ids currently in progress
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/foreman/pkg/domain"
)

// Store implements the fetcher, updater, comment-writer, and in-progress
// querier ports against a Redis backend.
type Store struct {
	client *backend.Client
	prefix string

	// activeStatuses are the statuses that count as "in progress"; updating
	// an item into one of them adds it to the active set.
	activeStatuses map[string]bool
}

// New creates a Store. An empty prefix defaults to "foreman:".
func New(client *backend.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "foreman:"
	}
	return &Store{
		client:         client,
		prefix:         prefix,
		activeStatuses: map[string]bool{"in-progress": true},
	}
}

func (s *Store) key(parts ...string) string {
	key := s.prefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Enqueue appends a work item to the delegation queue.
func (s *Store) Enqueue(ctx context.Context, item map[string]any) error {
	id, _ := item["id"].(string)
	if id == "" {
		return fmt.Errorf("work item must carry an id")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("item", id), data, 0)
	pipe.RPush(ctx, s.key("queue"), id)
	_, err = pipe.Exec(ctx)
	return err
}

// FetchCandidates implements ports.CandidateFetcher: the queue in order,
// wrapped in the standard envelope.
func (s *Store) FetchCandidates(ctx context.Context) (any, error) {
	ids, err := s.client.LRange(ctx, s.key("queue"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error listing queue: %w", err)
	}
	items := make([]any, 0, len(ids))
	for _, id := range ids {
		item, err := s.getItem(ctx, id)
		if err != nil {
			continue // dangling queue entry; not fatal for selection
		}
		items = append(items, item)
	}
	return map[string]any{"workItems": items}, nil
}

// FetchWorkItem implements ports.WorkItemFetcher.
func (s *Store) FetchWorkItem(ctx context.Context, id string) (map[string]any, error) {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	bodies, err := s.client.LRange(ctx, s.key("comments", id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error listing comments: %w", err)
	}
	comments := make([]any, 0, len(bodies))
	for _, body := range bodies {
		comments = append(comments, map[string]any{"body": body})
	}
	return map[string]any{"workItem": item, "comments": comments}, nil
}

func (s *Store) getItem(ctx context.Context, id string) (map[string]any, error) {
	data, err := s.client.Get(ctx, s.key("item", id)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, fmt.Errorf("work item %q not found", id)
		}
		return nil, fmt.Errorf("redis error loading item: %w", err)
	}
	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("work item %q is corrupt: %w", id, err)
	}
	return item, nil
}

// UpdateState implements ports.Updater with a read-modify-write of the item
// document, keeping the active set in sync.
func (s *Store) UpdateState(ctx context.Context, id string, to domain.StateTuple) error {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return err
	}
	item["status"] = to.Status
	item["stage"] = to.Stage

	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("item", id), data, 0)
	if s.activeStatuses[to.Status] {
		pipe.SAdd(ctx, s.key("active"), id)
	} else {
		pipe.SRem(ctx, s.key("active"), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// WriteComment implements ports.CommentWriter.
func (s *Store) WriteComment(ctx context.Context, id, body string) error {
	return s.client.RPush(ctx, s.key("comments", id), body).Err()
}

// InProgressCount implements ports.InProgressQuerier.
func (s *Store) InProgressCount(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key("active")).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error counting active items: %w", err)
	}
	return int(n), nil
}

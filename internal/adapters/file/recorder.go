// Package file persists dispatch records as an append-only JSONL audit log.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/foreman/pkg/domain"
)

// Record is one audit log line: the dispatch result plus a unique id.
type Record struct {
	ID         string                `json:"id"`
	RecordedAt time.Time             `json:"recordedAt"`
	Dispatch   domain.DispatchResult `json:"dispatch"`
}

// Recorder implements ports.DispatchRecorder against a local JSONL file.
type Recorder struct {
	Path string
}

// NewRecorder creates a Recorder. An empty path defaults to
// ".foreman/dispatches.jsonl".
func NewRecorder(path string) *Recorder {
	if path == "" {
		path = filepath.Join(".foreman", "dispatches.jsonl")
	}
	return &Recorder{Path: path}
}

// RecordDispatch appends one line. The file is opened with O_APPEND so
// concurrent writers from one process interleave whole lines.
func (r *Recorder) RecordDispatch(ctx context.Context, rec domain.DispatchResult) error {
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return fmt.Errorf("failed to ensure audit log directory: %w", err)
	}

	line, err := json.Marshal(Record{
		ID:         uuid.NewString(),
		RecordedAt: time.Now().UTC(),
		Dispatch:   rec,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch record: %w", err)
	}

	f, err := os.OpenFile(r.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append dispatch record: %w", err)
	}
	return nil
}

// Tail returns the last n records, oldest first. Used by the status command.
func (r *Recorder) Tail(n int) ([]Record, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			break // a torn tail line is not fatal
		}
		records = append(records, rec)
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

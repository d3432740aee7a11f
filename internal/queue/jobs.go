// Package queue defines the units of work the download pipeline schedules and
// the dispatcher contract that decouples "work exists" from "a worker runs it".
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// FetchManifestTask lists the documents of one download.
	FetchManifestTask = "download:fetch_manifest"
	// FetchDocumentTask fetches the contents of one document.
	FetchDocumentTask = "download:fetch_document"
)

// Task is a typed, serialized unit of work. The shape matches asynq tasks so
// both dispatchers carry the same bytes.
type Task struct {
	Type    string
	Payload []byte
}

// ManifestPayload identifies the download whose manifest should be fetched.
type ManifestPayload struct {
	RequestID  string `json:"request_id"`
	FileNumber string `json:"file_number"`
}

// DocumentPayload identifies one document to fetch.
type DocumentPayload struct {
	ID         string `json:"id"`
	DownloadID string `json:"download_id"`
	DocumentID string `json:"document_id"`
	// FileNumber is carried for log context only; recovered tasks omit it.
	FileNumber string `json:"file_number,omitempty"`
}

// Dispatcher accepts work for later execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, task Task) error
}

// Handler executes one task to completion.
type Handler interface {
	ProcessTask(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task Task) error

// ProcessTask calls f.
func (f HandlerFunc) ProcessTask(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// NewFetchManifestTask serializes p.
func NewFetchManifestTask(p ManifestPayload) (Task, error) {
	return newTask(FetchManifestTask, p)
}

// NewFetchDocumentTask serializes p.
func NewFetchDocumentTask(p DocumentPayload) (Task, error) {
	return newTask(FetchDocumentTask, p)
}

func newTask(typ string, payload any) (Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Task{Type: typ, Payload: data}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

// Key is a stable identity for the work a task describes, used to avoid
// queueing the same unit twice.
func (t Task) Key() string {
	switch t.Type {
	case FetchManifestTask:
		var p ManifestPayload
		if t.Decode(&p) == nil {
			return t.Type + ":" + p.RequestID
		}
	case FetchDocumentTask:
		var p DocumentPayload
		if t.Decode(&p) == nil {
			return t.Type + ":" + p.ID
		}
	}
	return ""
}

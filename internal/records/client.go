// Package records talks to the external records system that owns the
// eFolder documents. Each operation is a single blocking attempt; failures
// come back as *TransportError carrying the diagnostic output.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DocumentMeta is one manifest entry as reported by the records system.
type DocumentMeta struct {
	DocumentID string
	DocType    string
	Filename   string
	ReceivedAt *time.Time
	Source     *string
}

// Client is the records system collaborator.
type Client interface {
	ListDocuments(ctx context.Context, fileNumber string) ([]DocumentMeta, error)
	FetchDocumentContents(ctx context.Context, documentID string) ([]byte, error)
	GetDocumentTypes(ctx context.Context) (map[int]string, error)
}

// TransportError reports a failed call to the records system: the process
// could not start, exited non-zero, or produced unusable output.
type TransportError struct {
	Op       string
	Args     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("records %s %v: exit code %d", e.Op, e.Args, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if stderr := bytes.TrimSpace(e.Stderr); len(stderr) > 0 {
		const limit = 512
		if len(stderr) > limit {
			stderr = stderr[:limit]
		}
		msg += ": " + string(stderr)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}

type wireDocument struct {
	DocumentID flexString `json:"document_id"`
	DocType    flexString `json:"doc_type"`
	Filename   string     `json:"filename"`
	ReceivedAt *string    `json:"received_at"`
	Source     *string    `json:"source"`
}

type wireDocumentType struct {
	TypeID      flexString `json:"type_id"`
	Description string     `json:"description"`
}

const receivedAtLayout = "2006-01-02"

func parseManifest(data []byte) ([]DocumentMeta, error) {
	var wire []wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	out := make([]DocumentMeta, 0, len(wire))
	for i, w := range wire {
		if w.DocumentID == "" {
			return nil, fmt.Errorf("manifest entry %d: missing document_id", i)
		}
		meta := DocumentMeta{
			DocumentID: string(w.DocumentID),
			DocType:    string(w.DocType),
			Filename:   w.Filename,
			Source:     w.Source,
		}
		if w.ReceivedAt != nil && *w.ReceivedAt != "" {
			t, err := time.Parse(receivedAtLayout, *w.ReceivedAt)
			if err != nil {
				return nil, fmt.Errorf("manifest entry %d: received_at: %w", i, err)
			}
			meta.ReceivedAt = &t
		}
		out = append(out, meta)
	}
	return out, nil
}

func parseDocumentTypes(data []byte) (map[int]string, error) {
	var wire []wireDocumentType
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode document types: %w", err)
	}
	out := make(map[int]string, len(wire))
	for _, w := range wire {
		id, err := strconv.Atoi(string(w.TypeID))
		if err != nil {
			return nil, fmt.Errorf("document type id %q: %w", w.TypeID, err)
		}
		out[id] = w.Description
	}
	return out, nil
}

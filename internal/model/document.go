package model

import "time"

// Document is one file within a Download's manifest. Exactly one of
// ContentLocation != nil, Errored, or neither (pending) holds.
type Document struct {
	ID              string     `json:"id"`
	DownloadID      string     `json:"downloadId"`
	DocumentID      string     `json:"documentId"`
	DocType         string     `json:"docType"`
	Filename        string     `json:"filename"`
	ReceivedAt      *time.Time `json:"receivedAt,omitempty"`
	Source          *string    `json:"source,omitempty"`
	ContentLocation *string    `json:"-"`
	Errored         bool       `json:"errored"`
}

// Resolved reports whether the fetch finished, successfully or not.
func (d *Document) Resolved() bool {
	return d.ContentLocation != nil || d.Errored
}

// Fetched reports whether the contents are available in the blob store.
func (d *Document) Fetched() bool {
	return d.ContentLocation != nil
}

// Status is a short label for status pages and the archive README.
func (d *Document) Status() string {
	switch {
	case d.ContentLocation != nil:
		return "done"
	case d.Errored:
		return "failed"
	default:
		return "pending"
	}
}

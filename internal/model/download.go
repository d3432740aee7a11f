// Package model contains the Download and Document records shared across
// packages, plus the status that is derived from them on read.
package model

import (
	"math"
	"strings"
	"time"
)

// State describes where a Download is in its lifecycle. In Go a type declared
// via "type X string" gives the values their own type while keeping a plain
// string representation in the database.
type State string

const (
	StateStarted            State = "STARTED"
	StateManifestDownloaded State = "MANIFEST_DOWNLOADED"
	StateErrored            State = "ERRORED"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateStarted, StateManifestDownloaded, StateErrored:
		return true
	}
	return false
}

// manifestPendingPercent is shown before the manifest arrives so the progress
// bar is not empty while the first external call runs.
const manifestPendingPercent = 5

// Download is one user request for an entire eFolder.
type Download struct {
	RequestID  string     `json:"requestId"`
	FileNumber string     `json:"fileNumber"`
	StartedAt  time.Time  `json:"startedAt"`
	State      State      `json:"state"`
	Documents  []Document `json:"documents"`
}

// Completed reports whether every document has been resolved. A download
// without documents is never complete.
func (d *Download) Completed() bool {
	return len(d.Documents) > 0 && d.ResolvedCount() == len(d.Documents)
}

// PercentCompleted returns the share of resolved documents, or 5 while no
// documents are known yet.
func (d *Download) PercentCompleted() int {
	if len(d.Documents) == 0 {
		return manifestPendingPercent
	}
	return int(math.Round(100 * float64(d.ResolvedCount()) / float64(len(d.Documents))))
}

// ResolvedCount is the number of documents that were fetched or failed.
func (d *Download) ResolvedCount() int {
	n := 0
	for i := range d.Documents {
		if d.Documents[i].Resolved() {
			n++
		}
	}
	return n
}

// ErroredCount is the number of documents whose fetch failed.
func (d *Download) ErroredCount() int {
	n := 0
	for i := range d.Documents {
		if d.Documents[i].Errored {
			n++
		}
	}
	return n
}

// HasManifest reports whether the document list has been recorded.
func (d *Download) HasManifest() bool {
	return d.State == StateManifestDownloaded
}

// Errored reports whether listing the manifest failed.
func (d *Download) Errored() bool {
	return d.State == StateErrored
}

// NormalizeFileNumber strips the dashes and spaces callers commonly type into
// case file numbers.
func NormalizeFileNumber(fileNumber string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(fileNumber)
}

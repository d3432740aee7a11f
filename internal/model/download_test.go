package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func location(s string) *string { return &s }

func TestDownloadWithoutDocuments(t *testing.T) {
	d := &Download{RequestID: "r", FileNumber: "123456789", State: StateStarted}
	assert.False(t, d.Completed())
	assert.Equal(t, 5, d.PercentCompleted())
}

func TestDownloadCompletedMixedOutcomes(t *testing.T) {
	d := &Download{
		State: StateManifestDownloaded,
		Documents: []Document{
			{ID: "a", Errored: true},
			{ID: "b", ContentLocation: location("documents/b")},
			{ID: "c", ContentLocation: location("documents/c")},
		},
	}
	assert.True(t, d.Completed())
	assert.Equal(t, 100, d.PercentCompleted())
	assert.Equal(t, 1, d.ErroredCount())
}

func TestPercentCompletedIsMonotonic(t *testing.T) {
	d := &Download{State: StateManifestDownloaded, Documents: make([]Document, 3)}
	assert.Equal(t, 0, d.PercentCompleted())

	last := d.PercentCompleted()
	for i := range d.Documents {
		if i%2 == 0 {
			d.Documents[i].Errored = true
		} else {
			d.Documents[i].ContentLocation = location("x")
		}
		p := d.PercentCompleted()
		assert.GreaterOrEqual(t, p, last)
		assert.LessOrEqual(t, p, 100)
		last = p
	}
	assert.Equal(t, 100, last)
	assert.True(t, d.Completed())
}

func TestPercentCompletedRounds(t *testing.T) {
	d := &Download{Documents: []Document{{Errored: true}, {}, {}}}
	assert.Equal(t, 33, d.PercentCompleted())
	d.Documents[1].Errored = true
	assert.Equal(t, 67, d.PercentCompleted())
	assert.False(t, d.Completed())
}

func TestNormalizeFileNumber(t *testing.T) {
	cases := map[string]string{
		"123-45-6789":   "123456789",
		" 123 456 789 ": "123456789",
		"123456789":     "123456789",
		"- -":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeFileNumber(in), in)
	}
}

func TestDocumentStatus(t *testing.T) {
	assert.Equal(t, "pending", (&Document{}).Status())
	assert.Equal(t, "failed", (&Document{Errored: true}).Status())
	assert.Equal(t, "done", (&Document{ContentLocation: location("l")}).Status())
}

package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestTaskRoundTrip(t *testing.T) {
	task, err := NewFetchManifestTask(ManifestPayload{RequestID: "req-1", FileNumber: "123456789"})
	require.NoError(t, err)
	assert.Equal(t, FetchManifestTask, task.Type)
	assert.Equal(t, "download:fetch_manifest:req-1", task.Key())

	var p ManifestPayload
	require.NoError(t, task.Decode(&p))
	assert.Equal(t, "123456789", p.FileNumber)
}

func TestDocumentTaskKey(t *testing.T) {
	task, err := NewFetchDocumentTask(DocumentPayload{ID: "doc-1", DownloadID: "req-1", DocumentID: "{ABCD}"})
	require.NoError(t, err)
	assert.Equal(t, "download:fetch_document:doc-1", task.Key())
}

func TestKeyOfUnknownTask(t *testing.T) {
	assert.Empty(t, Task{Type: "other", Payload: []byte(`{}`)}.Key())
	assert.Empty(t, Task{Type: FetchDocumentTask, Payload: []byte(`not json`)}.Key())
}

func TestHandlerFunc(t *testing.T) {
	var got Task
	h := HandlerFunc(func(_ context.Context, task Task) error {
		got = task
		return nil
	})
	require.NoError(t, h.ProcessTask(context.Background(), Task{Type: "x"}))
	assert.Equal(t, "x", got.Type)
}

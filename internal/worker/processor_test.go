package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/efolder-express/internal/logging"
	"github.com/dharsanguruparan/efolder-express/internal/queue"
)

func TestProcessorRoutesBothTaskTypes(t *testing.T) {
	var seen []queue.Task
	h := queue.HandlerFunc(func(_ context.Context, task queue.Task) error {
		seen = append(seen, task)
		return nil
	})
	mux := NewProcessor(h, logging.NewNop()).Handler()

	manifest, err := queue.NewFetchManifestTask(queue.ManifestPayload{RequestID: "req-1", FileNumber: "1"})
	require.NoError(t, err)
	document, err := queue.NewFetchDocumentTask(queue.DocumentPayload{ID: "doc-1", DownloadID: "req-1", DocumentID: "{A}"})
	require.NoError(t, err)

	for _, task := range []queue.Task{manifest, document} {
		require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(task.Type, task.Payload)))
	}
	assert.Equal(t, []queue.Task{manifest, document}, seen)
}

func TestProcessorSwallowsErrors(t *testing.T) {
	h := queue.HandlerFunc(func(_ context.Context, task queue.Task) error {
		if task.Type == queue.FetchManifestTask {
			return errors.New("store unavailable")
		}
		panic("boom")
	})
	mux := NewProcessor(h, logging.NewNop()).Handler()

	assert.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(queue.FetchManifestTask, []byte(`{}`))))
	assert.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(queue.FetchDocumentTask, []byte(`{}`))))
}

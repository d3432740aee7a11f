package queue

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type enqueuedTask struct {
	typ      string
	id       string
	queue    string
	maxRetry int
}

// fakeRedis mimics asynq's task id bookkeeping: an id stays taken until the
// task holding it is deleted.
type fakeRedis struct {
	states   map[string]asynq.TaskState
	enqueued []enqueuedTask
	deleted  []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{states: map[string]asynq.TaskState{}}
}

func (f *fakeRedis) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e := enqueuedTask{typ: task.Type(), maxRetry: -1}
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			e.id = opt.Value().(string)
		case asynq.QueueOpt:
			e.queue = opt.Value().(string)
		case asynq.MaxRetryOpt:
			e.maxRetry = opt.Value().(int)
		}
	}
	if e.id != "" {
		if _, taken := f.states[e.id]; taken {
			return nil, asynq.ErrTaskIDConflict
		}
		f.states[e.id] = asynq.TaskStatePending
	}
	f.enqueued = append(f.enqueued, e)
	return &asynq.TaskInfo{ID: e.id, Queue: e.queue, State: asynq.TaskStatePending}, nil
}

func (f *fakeRedis) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	state, ok := f.states[id]
	if !ok {
		return nil, asynq.ErrTaskNotFound
	}
	return &asynq.TaskInfo{ID: id, Queue: queue, State: state}, nil
}

func (f *fakeRedis) DeleteTask(_, id string) error {
	if _, ok := f.states[id]; !ok {
		return asynq.ErrTaskNotFound
	}
	delete(f.states, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func newFakeDispatcher() (*AsynqDispatcher, *fakeRedis) {
	f := newFakeRedis()
	return &AsynqDispatcher{client: f, inspector: f, queue: "downloads"}, f
}

func documentTask(t *testing.T, id string) Task {
	t.Helper()
	task, err := NewFetchDocumentTask(DocumentPayload{ID: id, DownloadID: "req-1", DocumentID: "{" + id + "}"})
	require.NoError(t, err)
	return task
}

func TestAsynqEnqueueIsSingleAttemptWithKeyAsID(t *testing.T) {
	d, f := newFakeDispatcher()
	require.NoError(t, d.Enqueue(context.Background(), documentTask(t, "doc-1")))

	require.Len(t, f.enqueued, 1)
	assert.Equal(t, enqueuedTask{
		typ:      FetchDocumentTask,
		id:       "download:fetch_document:doc-1",
		queue:    "downloads",
		maxRetry: 0,
	}, f.enqueued[0])
}

func TestAsynqEnqueueWhileQueuedIsNoop(t *testing.T) {
	d, f := newFakeDispatcher()
	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, documentTask(t, "doc-1")))
	require.NoError(t, d.Enqueue(ctx, documentTask(t, "doc-1")))

	assert.Len(t, f.enqueued, 1)
	assert.Empty(t, f.deleted)
}

func TestAsynqEnqueueRevivesArchivedTask(t *testing.T) {
	d, f := newFakeDispatcher()
	ctx := context.Background()
	key := "download:fetch_document:doc-1"
	require.NoError(t, d.Enqueue(ctx, documentTask(t, "doc-1")))
	// What asynq's recoverer does to a single-attempt task whose worker died.
	f.states[key] = asynq.TaskStateArchived

	require.NoError(t, d.Enqueue(ctx, documentTask(t, "doc-1")))

	assert.Equal(t, []string{key}, f.deleted)
	require.Len(t, f.enqueued, 2)
	assert.Equal(t, key, f.enqueued[1].id)
	assert.Equal(t, asynq.TaskStatePending, f.states[key])
}

func TestAsynqEnqueueRevivesCompletedTask(t *testing.T) {
	d, f := newFakeDispatcher()
	key := "download:fetch_document:doc-1"
	f.states[key] = asynq.TaskStateCompleted

	require.NoError(t, d.Enqueue(context.Background(), documentTask(t, "doc-1")))
	assert.Equal(t, []string{key}, f.deleted)
	assert.Equal(t, asynq.TaskStatePending, f.states[key])
}

func TestAsynqEnqueueCopiesActiveTask(t *testing.T) {
	d, f := newFakeDispatcher()
	key := "download:fetch_document:doc-1"
	f.states[key] = asynq.TaskStateActive

	require.NoError(t, d.Enqueue(context.Background(), documentTask(t, "doc-1")))
	require.Len(t, f.enqueued, 1)
	assert.Empty(t, f.enqueued[0].id)
	assert.Equal(t, 0, f.enqueued[0].maxRetry)
	assert.Empty(t, f.deleted)
}

func startRedis(t *testing.T, ctx context.Context) asynq.RedisClientOpt {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return asynq.RedisClientOpt{Addr: fmt.Sprintf("%s:%s", host, port.Port())}
}

func TestAsynqRecoveryAgainstRedis(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("set TEST_INTEGRATION=1 to run against a Redis container")
	}
	ctx := context.Background()
	opt := startRedis(t, ctx)
	client := asynq.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	inspector := asynq.NewInspector(opt)
	t.Cleanup(func() { _ = inspector.Close() })

	d := NewAsynqDispatcher(client, inspector, "")
	task := documentTask(t, "doc-1")
	key := task.Key()

	require.NoError(t, d.Enqueue(ctx, task))
	info, err := inspector.GetTaskInfo("default", key)
	require.NoError(t, err)
	assert.Equal(t, 0, info.MaxRetry)

	require.NoError(t, d.Enqueue(ctx, task), "still queued")
	require.NoError(t, inspector.ArchiveTask("default", key))

	require.NoError(t, d.Enqueue(ctx, task))
	info, err = inspector.GetTaskInfo("default", key)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)
}

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// taskEnqueuer is the part of *asynq.Client the dispatcher uses.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// taskInspector is the part of *asynq.Inspector the dispatcher uses.
type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// AsynqDispatcher enqueues tasks into Redis for the asynq worker process.
type AsynqDispatcher struct {
	client    taskEnqueuer
	inspector taskInspector
	queue     string
}

// NewAsynqDispatcher wraps an asynq client and an inspector on the same
// Redis. queueName may be empty for the default queue.
func NewAsynqDispatcher(client *asynq.Client, inspector *asynq.Inspector, queueName string) *AsynqDispatcher {
	if queueName == "" {
		queueName = "default"
	}
	return &AsynqDispatcher{client: client, inspector: inspector, queue: queueName}
}

// Enqueue submits a single-attempt task. Tasks carry their Key as the asynq
// task id, so re-enqueueing work that is still waiting to run is a no-op.
//
// A task whose id is held by an archived or retained completed task is
// re-enqueued: asynq archives a single-attempt task when its worker dies
// mid-run, and the unit it carried is still pending in the store. A task
// still marked active is enqueued again without an id, since its lease may
// belong to a dead worker; if it does not, the copy finds the unit resolved.
func (d *AsynqDispatcher) Enqueue(ctx context.Context, task Task) error {
	key := task.Key()
	err := d.enqueue(ctx, task, key)
	if key == "" || !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}

	info, err := d.inspector.GetTaskInfo(d.queue, key)
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
		// Gone between the conflict and the lookup.
		return d.enqueue(ctx, task, key)
	case err != nil:
		return fmt.Errorf("inspect %s: %w", key, err)
	}

	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		if err := d.inspector.DeleteTask(d.queue, key); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("delete stale task %s: %w", key, err)
		}
		err = d.enqueue(ctx, task, key)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	case asynq.TaskStateActive:
		return d.enqueue(ctx, task, "")
	default:
		return nil
	}
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, task Task, id string) error {
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.Queue(d.queue)}
	if id != "" {
		opts = append(opts, asynq.TaskID(id))
	}
	_, err := d.client.EnqueueContext(ctx, asynq.NewTask(task.Type, task.Payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return nil
}

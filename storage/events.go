package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"weather-tasks/domain"
)

// Task change event types published on the feed.
const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// TaskEvent describes one durable change to a task.
type TaskEvent struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	TaskID int64        `json:"taskID"`
	UserID string       `json:"userId,omitempty"`
	Task   *domain.Task `json:"task,omitempty"`
	Time   int64        `json:"time"`
}

// Publisher delivers serialized events.
type Publisher interface {
	Publish(ctx context.Context, message string) error
}

// QueuePublisher sends events to an Azure storage queue.
type QueuePublisher struct {
	queue *azqueue.QueueClient
}

// NewQueuePublisher connects to the named queue.
func NewQueuePublisher(connStr, queueName string) (*QueuePublisher, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: q}, nil
}

func (p *QueuePublisher) Publish(ctx context.Context, message string) error {
	_, err := p.queue.EnqueueMessage(ctx, message, nil)
	return err
}

// EventFeed wraps a Backend and publishes a TaskEvent after every successful
// write. Publish failures are logged; the write has already happened.
type EventFeed struct {
	base      Backend
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

func NewEventFeed(base Backend, publisher Publisher, logger *log.Logger) *EventFeed {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &EventFeed{base: base, publisher: publisher, logger: logger, now: time.Now}
}

func (f *EventFeed) CreateTask(ctx context.Context, t domain.Task) error {
	if err := f.base.CreateTask(ctx, t); err != nil {
		return err
	}
	f.publish(ctx, TaskEvent{Type: TaskCreated, TaskID: t.TaskID, UserID: t.UserID, Task: &t})
	return nil
}

func (f *EventFeed) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	return f.base.ListTasks(ctx, userID)
}

func (f *EventFeed) UpdateTask(ctx context.Context, t domain.Task) (int64, error) {
	n, err := f.base.UpdateTask(ctx, t)
	if err != nil || n == 0 {
		return n, err
	}
	if owner, err := f.base.TaskOwner(ctx, t.TaskID); err == nil {
		t.UserID = owner
	}
	f.publish(ctx, TaskEvent{Type: TaskUpdated, TaskID: t.TaskID, UserID: t.UserID, Task: &t})
	return n, nil
}

func (f *EventFeed) DeleteTask(ctx context.Context, taskID int64) (int64, error) {
	n, err := f.base.DeleteTask(ctx, taskID)
	if err != nil || n == 0 {
		return n, err
	}
	f.publish(ctx, TaskEvent{Type: TaskDeleted, TaskID: taskID})
	return n, nil
}

func (f *EventFeed) TaskOwner(ctx context.Context, taskID int64) (string, error) {
	return f.base.TaskOwner(ctx, taskID)
}

func (f *EventFeed) Ping(ctx context.Context) error {
	return f.base.Ping(ctx)
}

func (f *EventFeed) publish(ctx context.Context, ev TaskEvent) {
	ev.ID = uuid.NewString()
	ev.Time = f.now().UnixMilli()
	entry := f.logger.WithFields(log.Fields{"event": ev.Type, "taskID": ev.TaskID})
	msg, err := sonic.MarshalString(ev)
	if err != nil {
		entry.WithError(err).Error("task event encode failed")
		return
	}
	if err := f.publisher.Publish(ctx, msg); err != nil {
		entry.WithError(err).Error("task event publish failed")
		return
	}
	entry.Debug("task event published")
}

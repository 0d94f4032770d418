package storage

import (
	"context"

	"weather-tasks/domain"
)

// Backend is the contract every task store implements. Update and Delete
// report the number of rows they touched; zero means no task had the id.
type Backend interface {
	CreateTask(ctx context.Context, task domain.Task) error
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) (int64, error)
	DeleteTask(ctx context.Context, taskID int64) (int64, error)
	TaskOwner(ctx context.Context, taskID int64) (string, error)
	Ping(ctx context.Context) error
}

var (
	_ Backend = (*TableStore)(nil)
	_ Backend = (*SQLStore)(nil)
	_ Backend = (*MemoryStore)(nil)
	_ Backend = (*Cache)(nil)
	_ Backend = (*EventFeed)(nil)
)

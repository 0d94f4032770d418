package api

import (
	"context"

	"weather-tasks/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	CreateTask(ctx context.Context, t domain.Task) error
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (int64, error)
	DeleteTask(ctx context.Context, taskID int64) (int64, error)
	Ping(ctx context.Context) error
}

// Reserver guards task ids against concurrent creates across instances.
type Reserver interface {
	// Reserve records the id and returns true if it was not reserved before.
	Reserve(ctx context.Context, taskID int64) (bool, error)
	// Release drops a reservation after a failed create or a delete.
	Release(ctx context.Context, taskID int64) error
}

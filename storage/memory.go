package storage

import (
	"context"
	"sort"
	"sync"

	"weather-tasks/domain"
)

// MemoryStore is an in-process store used for local runs and tests. Tasks are
// kept in their encoded column form so constraint round-trips match the
// durable backends.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[int64]taskRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[int64]taskRow{}}
}

func (m *MemoryStore) CreateTask(_ context.Context, t domain.Task) error {
	row, err := toTaskRow(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[t.TaskID]; exists {
		return domain.ErrDuplicateTask
	}
	m.rows[t.TaskID] = row
	return nil
}

// ListTasks returns the owner's tasks ordered by id.
func (m *MemoryStore) ListTasks(_ context.Context, userID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := []domain.Task{}
	for _, row := range m.rows {
		if row.UserID != userID {
			continue
		}
		t, err := row.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	return tasks, nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, t domain.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[t.TaskID]
	if !ok {
		return 0, nil
	}
	t.UserID = cur.UserID
	row, err := toTaskRow(t)
	if err != nil {
		return 0, err
	}
	m.rows[t.TaskID] = row
	return 1, nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, taskID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[taskID]; !ok {
		return 0, nil
	}
	delete(m.rows, taskID)
	return 1, nil
}

func (m *MemoryStore) TaskOwner(_ context.Context, taskID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[taskID]
	if !ok {
		return "", domain.ErrTaskNotFound
	}
	return row.UserID, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

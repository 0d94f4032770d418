package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"weather-tasks/domain"
)

const edmDouble = "Edm.Double"

// TableStore keeps tasks in Azure Table Storage, partitioned by owner with the
// task id as row key.
type TableStore struct {
	taskTable *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tasksTable string) (*TableStore, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &TableStore{taskTable: svc.NewClient(tasksTable)}, nil
}

// entityKeys mirrors the system keys without the read-only Timestamp.
type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	entityKeys
	Task                string  `json:"Task"`
	Date                string  `json:"Date"`
	Time                string  `json:"Time"`
	Location            string  `json:"Location"`
	Lat                 float64 `json:"Lat"`
	LatType             string  `json:"Lat@odata.type,omitempty"`
	Lon                 float64 `json:"Lon"`
	LonType             string  `json:"Lon@odata.type,omitempty"`
	WeatherRestrictions string  `json:"WeatherRestrictions"`
	Details             string  `json:"Details"`
	RequiredTemperature string  `json:"RequiredTemperature"`
	IdealHumidity       string  `json:"IdealHumidity"`
}

func rowKey(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

func toTaskEntity(t domain.Task) (taskEntity, error) {
	enc, err := domain.EncodeConstraints(t)
	if err != nil {
		return taskEntity{}, err
	}
	return taskEntity{
		entityKeys:          entityKeys{PartitionKey: t.UserID, RowKey: rowKey(t.TaskID)},
		Task:                t.Task,
		Date:                t.Date,
		Time:                t.Time,
		Location:            t.Location,
		Lat:                 t.Lat,
		LatType:             edmDouble,
		Lon:                 t.Lon,
		LonType:             edmDouble,
		WeatherRestrictions: enc.WeatherRestrictions,
		Details:             t.Details,
		RequiredTemperature: enc.RequiredTemperature,
		IdealHumidity:       enc.IdealHumidity,
	}, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id, err := strconv.ParseInt(ent.RowKey, 10, 64)
	if err != nil {
		return domain.Task{}, fmt.Errorf("row key %q: %w", ent.RowKey, err)
	}
	t := domain.Task{
		UserID:   ent.PartitionKey,
		TaskID:   id,
		Task:     ent.Task,
		Date:     ent.Date,
		Time:     ent.Time,
		Location: ent.Location,
		Lat:      ent.Lat,
		Lon:      ent.Lon,
		Details:  ent.Details,
	}
	err = domain.DecodeConstraints(&t, domain.EncodedConstraints{
		WeatherRestrictions: ent.WeatherRestrictions,
		RequiredTemperature: ent.RequiredTemperature,
		IdealHumidity:       ent.IdealHumidity,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, err)
	}
	return t, nil
}

// quoteODataString escapes a value for use inside an OData filter literal.
func quoteODataString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

// CreateTask inserts a task. The row key is unique within the owner's partition.
func (s *TableStore) CreateTask(ctx context.Context, t domain.Task) error {
	ent, err := toTaskEntity(t)
	if err != nil {
		return err
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, http.StatusConflict) {
			return domain.ErrDuplicateTask
		}
		return fmt.Errorf("add task entity: %w", err)
	}
	return nil
}

// ListTasks retrieves all tasks for the provided user.
func (s *TableStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq " + quoteODataString(userID)
	tasks := []domain.Task{}
	err := s.eachEntity(ctx, filter, func(data []byte) error {
		t, err := decodeTaskEntity(data)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTask replaces the mutable fields of every entity with the task's id.
// The owner is taken from the stored entity, not from t.
func (s *TableStore) UpdateTask(ctx context.Context, t domain.Task) (int64, error) {
	keys, err := s.findByID(ctx, t.TaskID)
	if err != nil {
		return 0, err
	}
	var affected int64
	for _, key := range keys {
		t.UserID = key.PartitionKey
		ent, err := toTaskEntity(t)
		if err != nil {
			return affected, err
		}
		payload, err := sonic.Marshal(ent)
		if err != nil {
			return affected, err
		}
		et := azcore.ETagAny
		_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
		if err != nil {
			if isStatus(err, http.StatusNotFound) {
				continue
			}
			return affected, fmt.Errorf("update task entity: %w", err)
		}
		affected++
	}
	return affected, nil
}

// DeleteTask removes every entity with the given task id.
func (s *TableStore) DeleteTask(ctx context.Context, taskID int64) (int64, error) {
	keys, err := s.findByID(ctx, taskID)
	if err != nil {
		return 0, err
	}
	var affected int64
	for _, key := range keys {
		et := azcore.ETagAny
		_, err := s.taskTable.DeleteEntity(ctx, key.PartitionKey, key.RowKey, &aztables.DeleteEntityOptions{IfMatch: &et})
		if err != nil {
			if isStatus(err, http.StatusNotFound) {
				continue
			}
			return affected, fmt.Errorf("delete task entity: %w", err)
		}
		affected++
	}
	return affected, nil
}

// TaskOwner returns the owner of the task with the given id.
func (s *TableStore) TaskOwner(ctx context.Context, taskID int64) (string, error) {
	keys, err := s.findByID(ctx, taskID)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", domain.ErrTaskNotFound
	}
	return keys[0].PartitionKey, nil
}

// Ping issues a single-row query against the task table.
func (s *TableStore) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			return err
		}
	}
	return nil
}

// findByID scans all partitions since mutations are keyed by task id alone.
// Only keys are fetched so rows with damaged constraint columns stay reachable.
func (s *TableStore) findByID(ctx context.Context, taskID int64) ([]entityKeys, error) {
	filter := "RowKey eq " + quoteODataString(rowKey(taskID))
	var keys []entityKeys
	err := s.eachEntity(ctx, filter, func(data []byte) error {
		var key entityKeys
		if err := sonic.Unmarshal(data, &key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

func (s *TableStore) eachEntity(ctx context.Context, filter string, fn func([]byte) error) error {
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list task entities: %w", err)
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"weather-tasks/domain"
)

// TaskAPI is the part of the Task Resource API the controller drives.
type TaskAPI interface {
	CreateTask(ctx context.Context, t domain.Task) (int64, error)
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, taskID int64) error
}

// TransportError reports a request that never produced a usable response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response. Message is the server's error text.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP error! status: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Client talks JSON to the Task Resource API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type messageBody struct {
	Message string `json:"message"`
	TaskID  int64  `json:"taskID"`
	Error   string `json:"error"`
}

type tasksBody struct {
	Tasks []domain.Task `json:"tasks"`
	Error string        `json:"error"`
}

func (c *Client) CreateTask(ctx context.Context, t domain.Task) (int64, error) {
	var out messageBody
	if err := c.do(ctx, "create task", http.MethodPost, "/api/tasks", t, &out); err != nil {
		return 0, err
	}
	if out.TaskID == 0 {
		out.TaskID = t.TaskID
	}
	return out.TaskID, nil
}

func (c *Client) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var out tasksBody
	path := "/api/tasks?userId=" + url.QueryEscape(userID)
	if err := c.do(ctx, "list tasks", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []domain.Task{}
	}
	return out.Tasks, nil
}

func (c *Client) UpdateTask(ctx context.Context, t domain.Task) error {
	path := "/api/tasks/" + strconv.FormatInt(t.TaskID, 10)
	return c.do(ctx, "update task", http.MethodPut, path, t, &messageBody{})
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	path := "/api/tasks/" + strconv.FormatInt(taskID, 10)
	return c.do(ctx, "delete task", http.MethodDelete, path, nil, &messageBody{})
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error string `json:"error"`
		}
		_ = sonic.Unmarshal(data, &eb)
		return &StatusError{Op: op, Status: resp.StatusCode, Message: eb.Error}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

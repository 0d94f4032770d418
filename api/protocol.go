package api

import (
	"bytes"
	"strconv"

	"github.com/bytedance/sonic"

	"weather-tasks/domain"
)

const defaultBodyLimit = 64 * 1024 // 64 KiB

const allowedMethods = "POST, GET, PUT, DELETE"

const (
	msgTaskCreated  = "Task created successfully"
	msgTaskUpdated  = "Task updated successfully"
	msgTaskDeleted  = "Task deleted successfully"
	errCreateFailed = "Failed to create task"
	errFetchFailed  = "Failed to fetch tasks"
	errUpdateFailed = "Failed to update task"
	errDeleteFailed = "Failed to delete task"
	errTaskNotFound = "Task not found"
	errTaskExists   = "Task already exists"
	errInvalidBody  = "Invalid request body"
)

// taskPayload is the POST/PUT /tasks body. Constraint fields are kept raw so
// both structured values and their serialized string form are accepted.
type taskPayload struct {
	UserID              string   `json:"userId"`
	TaskID              *int64   `json:"taskID"`
	Task                string   `json:"task"`
	Date                string   `json:"date"`
	Time                string   `json:"time"`
	Location            string   `json:"location"`
	Lat                 float64  `json:"lat"`
	Lon                 float64  `json:"lon"`
	WeatherRestrictions rawField `json:"weatherRestrictions"`
	Details             string   `json:"details"`
	RequiredTemperature rawField `json:"requiredTemperature"`
	IdealHumidity       rawField `json:"idealHumidity"`
}

// rawField holds an undecoded JSON value.
type rawField []byte

func (r *rawField) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// toTask converts the payload, applying defaults to absent constraints.
// The task id is left to the caller.
func (p taskPayload) toTask() (domain.Task, error) {
	weather, err := decodeField[domain.WeatherSet]("weatherRestrictions", p.WeatherRestrictions)
	if err != nil {
		return domain.Task{}, err
	}
	temperature, err := decodeField[domain.Range]("requiredTemperature", p.RequiredTemperature)
	if err != nil {
		return domain.Task{}, err
	}
	humidity, err := decodeField[domain.Range]("idealHumidity", p.IdealHumidity)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.ApplyDefaults(domain.Task{
		UserID:   p.UserID,
		Task:     p.Task,
		Date:     p.Date,
		Time:     p.Time,
		Location: p.Location,
		Lat:      p.Lat,
		Lon:      p.Lon,
		Details:  p.Details,
	}, weather, temperature, humidity), nil
}

// decodeField returns nil for an absent or null value.
func decodeField[T domain.Constraint](field string, raw rawField) (*T, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := sonic.Unmarshal(data, &s); err != nil {
			return nil, &domain.ValidationError{Field: field, Reason: "malformed value"}
		}
	}
	v, err := domain.Decode[T](s)
	if err != nil {
		return nil, &domain.ValidationError{Field: field, Reason: err.Error()}
	}
	return &v, nil
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "taskID", Reason: "must be a positive number"}
	}
	return id, nil
}

type messageResponse struct {
	Message string `json:"message"`
	TaskID  int64  `json:"taskID,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type healthResponse struct {
	Status string `json:"status"`
}

package domain

import (
	"bytes"
	"strconv"

	"github.com/bytedance/sonic"
)

// DefaultDetails is used when a template carries no details.
const DefaultDetails = "No task details provided."

var (
	// DefaultRequiredTemperature applies when a template has no temperature range.
	DefaultRequiredTemperature = Range{Min: 20, Max: 35}
	// DefaultIdealHumidity applies when a template has no humidity range.
	DefaultIdealHumidity = Range{Min: 60, Max: 85}
)

// TemplateID identifies a catalog entry. Feeds publish it as a number or a string.
type TemplateID string

// UnmarshalJSON accepts both JSON strings and numbers.
func (id *TemplateID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TemplateID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return &ValidationError{Field: "id", Reason: "must be a string or number"}
	}
	*id = TemplateID(data)
	return nil
}

// Template is a catalog entry a task is created from. Missing constraint
// fields are nil and fall back to the defaults.
type Template struct {
	ID                  TemplateID  `json:"id"`
	Task                string      `json:"task"`
	WeatherRestrictions *WeatherSet `json:"weatherRestrictions,omitempty"`
	Details             string      `json:"details,omitempty"`
	RequiredTemperature *Range      `json:"requiredTemperature,omitempty"`
	IdealHumidity       *Range      `json:"idealHumidity,omitempty"`
}

// Schedule holds the user's choices for a new task.
type Schedule struct {
	UserID   string
	TaskID   int64
	Date     string
	Time     string
	Location string
	Lat      float64
	Lon      float64
}

// NewTask builds a task from a template and the user's choices, copying the
// label and applying defaults for any constraint the template omits.
func (tpl Template) NewTask(s Schedule) Task {
	return ApplyDefaults(Task{
		UserID:   s.UserID,
		TaskID:   s.TaskID,
		Task:     tpl.Task,
		Date:     s.Date,
		Time:     s.Time,
		Location: s.Location,
		Lat:      s.Lat,
		Lon:      s.Lon,
		Details:  tpl.Details,
	}, tpl.WeatherRestrictions, tpl.RequiredTemperature, tpl.IdealHumidity)
}

// ApplyDefaults sets the constraint fields of t from the given values, using
// the documented defaults for nil ones. Blank details become DefaultDetails.
func ApplyDefaults(t Task, weather *WeatherSet, temperature, humidity *Range) Task {
	t.WeatherRestrictions = WeatherSet{}
	if weather != nil {
		t.WeatherRestrictions = weather.Normalize()
	}
	t.RequiredTemperature = DefaultRequiredTemperature
	if temperature != nil {
		t.RequiredTemperature = *temperature
	}
	t.IdealHumidity = DefaultIdealHumidity
	if humidity != nil {
		t.IdealHumidity = *humidity
	}
	if t.Details == "" {
		t.Details = DefaultDetails
	}
	return t
}

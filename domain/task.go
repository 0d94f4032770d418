package domain

// Task is a weather dependent activity scheduled by a single owner.
type Task struct {
	UserID              string     `json:"userId"`
	TaskID              int64      `json:"taskID"`
	Task                string     `json:"task"`
	Date                string     `json:"date"`
	Time                string     `json:"time"`
	Location            string     `json:"location"`
	Lat                 float64    `json:"lat"`
	Lon                 float64    `json:"lon"`
	WeatherRestrictions WeatherSet `json:"weatherRestrictions"`
	Details             string     `json:"details"`
	RequiredTemperature Range      `json:"requiredTemperature"`
	IdealHumidity       Range      `json:"idealHumidity"`
}

// Validate checks the fields a store relies on. Date and time stay opaque.
func (t Task) Validate() error {
	if t.TaskID <= 0 {
		return &ValidationError{Field: "taskID", Reason: "must be a positive number"}
	}
	if t.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	return t.ValidateMutable()
}

// ValidateMutable checks the fields an update is allowed to overwrite.
func (t Task) ValidateMutable() error {
	if t.Lat < -90 || t.Lat > 90 {
		return &ValidationError{Field: "lat", Reason: "out of range"}
	}
	if t.Lon < -180 || t.Lon > 180 {
		return &ValidationError{Field: "lon", Reason: "out of range"}
	}
	if err := t.WeatherRestrictions.Validate(); err != nil {
		return &ValidationError{Field: "weatherRestrictions", Reason: err.Error()}
	}
	if err := t.RequiredTemperature.Validate(); err != nil {
		return &ValidationError{Field: "requiredTemperature", Reason: err.Error()}
	}
	if err := t.IdealHumidity.Validate(); err != nil {
		return &ValidationError{Field: "idealHumidity", Reason: err.Error()}
	}
	return nil
}

// WithMutable returns t with every field except TaskID and UserID taken from src.
func (t Task) WithMutable(src Task) Task {
	src.TaskID = t.TaskID
	src.UserID = t.UserID
	return src
}

package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"weather-tasks/domain"
)

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateLoadingCatalog
	StateReady
	StateSubmitting
	StateEditing
	StateSaving
	StateDeleting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingCatalog:
		return "loading-catalog"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	case StateDeleting:
		return "deleting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrNoIdentity      = errors.New("User ID is not available")
	ErrNoTemplate      = errors.New("Please select a valid task.")
	ErrDateInPast      = errors.New("date is in the past")
	ErrCatalogNotReady = errors.New("template catalog is not loaded")
	ErrTaskNotListed   = errors.New("task is not in the local list")
)

// InvalidStateError is returned for an action the current state does not allow.
type InvalidStateError struct {
	Action string
	State  State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Action, e.State)
}

// DateLayout is the format of Form.Date.
const DateLayout = "2006-01-02"

// Form holds the user's choices for a new task.
type Form struct {
	TemplateID domain.TemplateID
	Date       string
	Time       string
	Location   string
}

// Controller drives the schedule and manage flows against the API. Local
// state changes only after the server confirms a mutation.
type Controller struct {
	api      TaskAPI
	catalog  Catalog
	identity Identity
	logger   *log.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	loaded    bool
	userID    string
	templates []domain.Template
	tasks     []domain.Task
	form      Form
	draft     *domain.Task
	err       error
}

func NewController(api TaskAPI, catalog Catalog, identity Identity, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{
		api:      api,
		catalog:  catalog,
		identity: identity,
		logger:   logger,
		now:      time.Now,
		state:    StateIdle,
	}
}

// Load fetches the template catalog and the owner's tasks concurrently. The
// task fetch waits for the device identity only.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateReady {
		st := c.state
		c.mu.Unlock()
		return &InvalidStateError{Action: "load", State: st}
	}
	c.state = StateLoadingCatalog
	c.mu.Unlock()

	var (
		wg                   sync.WaitGroup
		templates            []domain.Template
		tasks                []domain.Task
		userID               string
		catalogErr, tasksErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		templates, catalogErr = c.catalog.Templates(ctx)
	}()
	go func() {
		defer wg.Done()
		var err error
		if userID, err = c.identity.UserID(); err != nil {
			tasksErr = fmt.Errorf("%w: %v", ErrNoIdentity, err)
			return
		}
		tasks, tasksErr = c.api.ListTasks(ctx, userID)
	}()
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if userID != "" {
		c.userID = userID
	}
	if tasksErr == nil {
		c.tasks = tasks
	} else {
		c.logger.WithError(tasksErr).Warn("fetch user tasks failed")
	}
	if catalogErr != nil {
		c.logger.WithError(catalogErr).Warn("fetch templates failed")
		if !c.loaded {
			c.state = StateIdle
		} else {
			c.state = StateReady
		}
	} else {
		c.templates = templates
		c.loaded = true
		c.state = StateReady
	}
	c.err = errors.Join(catalogErr, tasksErr)
	return c.err
}

// SetForm replaces the schedule form.
func (c *Controller) SetForm(f Form) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = f
}

// Schedule creates a task from the form. On success the task is added to the
// local list and the form is cleared.
func (c *Controller) Schedule(ctx context.Context) (domain.Task, error) {
	c.mu.Lock()
	if c.state != StateReady && c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return domain.Task{}, &InvalidStateError{Action: "schedule", State: st}
	}
	task, err := c.buildTask()
	if err != nil {
		c.err = err
		c.mu.Unlock()
		return domain.Task{}, err
	}
	prev := c.state
	c.state = StateSubmitting
	c.mu.Unlock()

	id, err := c.api.CreateTask(ctx, task)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = prev
		c.err = err
		return domain.Task{}, err
	}
	task.TaskID = id
	c.tasks = append(c.tasks, task)
	c.form = Form{}
	c.err = nil
	c.state = StateIdle
	return task, nil
}

// buildTask must be called with c.mu held.
func (c *Controller) buildTask() (domain.Task, error) {
	if c.userID == "" {
		return domain.Task{}, ErrNoIdentity
	}
	if !c.loaded {
		return domain.Task{}, ErrCatalogNotReady
	}
	tpl, ok := c.findTemplate(c.form.TemplateID)
	if !ok {
		return domain.Task{}, ErrNoTemplate
	}
	date, err := time.ParseInLocation(DateLayout, c.form.Date, time.Local)
	if err != nil {
		return domain.Task{}, &domain.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if date.Before(today) {
		return domain.Task{}, ErrDateInPast
	}
	coords, ok := LookupLocation(c.form.Location)
	if !ok {
		return domain.Task{}, &domain.ValidationError{Field: "location", Reason: "unknown location " + strconv.Quote(c.form.Location)}
	}
	task := tpl.NewTask(domain.Schedule{
		UserID:   c.userID,
		TaskID:   domain.NewTaskID(),
		Date:     c.form.Date,
		Time:     c.form.Time,
		Location: c.form.Location,
		Lat:      coords.Lat,
		Lon:      coords.Lon,
	})
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *Controller) findTemplate(id domain.TemplateID) (domain.Template, bool) {
	if id == "" {
		return domain.Template{}, false
	}
	for _, tpl := range c.templates {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return domain.Template{}, false
}

// Edit opens a listed task for editing.
func (c *Controller) Edit(taskID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady && c.state != StateIdle {
		return &InvalidStateError{Action: "edit", State: c.state}
	}
	i := c.indexOf(taskID)
	if i < 0 {
		return ErrTaskNotListed
	}
	draft := c.tasks[i]
	c.draft = &draft
	c.state = StateEditing
	return nil
}

// SetDraft replaces the editable fields of the open task. The id and owner
// stay fixed.
func (c *Controller) SetDraft(t domain.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEditing {
		return &InvalidStateError{Action: "change draft", State: c.state}
	}
	next := c.draft.WithMutable(t)
	c.draft = &next
	return nil
}

// Cancel closes the editor without saving.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEditing {
		c.draft = nil
		c.state = StateReady
	}
}

// Save sends the draft. The local entry is replaced only after success.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateEditing {
		st := c.state
		c.mu.Unlock()
		return &InvalidStateError{Action: "save", State: st}
	}
	draft := *c.draft
	if err := draft.ValidateMutable(); err != nil {
		c.err = err
		c.mu.Unlock()
		return err
	}
	c.state = StateSaving
	c.mu.Unlock()

	err := c.api.UpdateTask(ctx, draft)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateEditing
		c.err = err
		return err
	}
	if i := c.indexOf(draft.TaskID); i >= 0 {
		c.tasks[i] = draft
	}
	c.draft = nil
	c.err = nil
	c.state = StateReady
	return nil
}

// Delete removes the open task. The local entry goes only after success.
func (c *Controller) Delete(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateEditing {
		st := c.state
		c.mu.Unlock()
		return &InvalidStateError{Action: "delete", State: st}
	}
	taskID := c.draft.TaskID
	c.state = StateDeleting
	c.mu.Unlock()

	err := c.api.DeleteTask(ctx, taskID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateEditing
		c.err = err
		return err
	}
	if i := c.indexOf(taskID); i >= 0 {
		c.tasks = append(c.tasks[:i:i], c.tasks[i+1:]...)
	}
	c.draft = nil
	c.err = nil
	c.state = StateReady
	return nil
}

func (c *Controller) indexOf(taskID int64) int {
	for i, t := range c.tasks {
		if t.TaskID == taskID {
			return i
		}
	}
	return -1
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Tasks returns a copy of the local task list.
func (c *Controller) Tasks() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Task(nil), c.tasks...)
}

func (c *Controller) Templates() []domain.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Template(nil), c.templates...)
}

func (c *Controller) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Draft returns the task being edited.
func (c *Controller) Draft() (domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return domain.Task{}, false
	}
	return *c.draft, true
}

// Err is the message of the last failed action, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

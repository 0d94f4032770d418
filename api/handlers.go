package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"weather-tasks/domain"
)

const healthTimeout = 2 * time.Second

type handler struct {
	store    Storage
	reserver Reserver
	log      *log.Logger
}

// Register wires up all API routes on the provided Echo instance. reserver
// may be nil when no shared id registry is configured.
func Register(e *echo.Echo, store Storage, reserver Reserver, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handler{store: store, reserver: reserver, log: logger}
	e.Any("/tasks", h.tasks)
	e.Any("/api/tasks", h.tasks)
	e.Any("/api/tasks/:taskID", h.taskByID)
	e.GET("/healthz", h.healthz)
}

func (h *handler) tasks(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodPost:
		return h.createTask(c)
	case http.MethodGet:
		return h.listTasks(c)
	case http.MethodPut:
		return h.updateTask(c, "")
	case http.MethodDelete:
		return h.deleteTask(c, c.QueryParam("taskID"))
	default:
		return methodNotAllowed(c, allowedMethods)
	}
}

// taskByID serves the path form used by clients that address a task directly.
func (h *handler) taskByID(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodPut:
		return h.updateTask(c, c.Param("taskID"))
	case http.MethodDelete:
		return h.deleteTask(c, c.Param("taskID"))
	default:
		return methodNotAllowed(c, "PUT, DELETE")
	}
}

func methodNotAllowed(c echo.Context, allow string) error {
	c.Response().Header().Set(echo.HeaderAllow, allow)
	return c.String(http.StatusMethodNotAllowed, fmt.Sprintf("Method %s Not Allowed", c.Request().Method))
}

func (h *handler) begin(c echo.Context, op string) (*taskRequestMetrics, context.Context) {
	metrics, ctx := newTaskRequestMetrics(c.Request().Context(), h.log)
	metrics.SetRequest(c.Path(), c.Request().Method, op)
	c.SetRequest(c.Request().WithContext(ctx))
	return metrics, ctx
}

func (h *handler) createTask(c echo.Context) (err error) {
	metrics, ctx := h.begin(c, "create")
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	decodeStart := time.Now()
	var p taskPayload
	if decodeErr := decodeJSON(c, &p); decodeErr != nil {
		return badBody(c, metrics, decodeErr)
	}
	t, convErr := p.toTask()
	if convErr == nil {
		if p.TaskID != nil {
			t.TaskID = *p.TaskID
		} else {
			t.TaskID = domain.NewTaskID()
		}
		convErr = t.Validate()
	}
	metrics.ObserveDecode(time.Since(decodeStart))
	if convErr != nil {
		metrics.Fail("validate", convErr)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: convErr.Error()})
	}

	reserved := false
	if h.reserver != nil {
		ok, resErr := h.reserver.Reserve(ctx, t.TaskID)
		switch {
		case resErr != nil:
			h.log.WithError(resErr).WithField("taskID", t.TaskID).Warn("task id reservation unavailable")
		case !ok:
			metrics.Fail("reserve", domain.ErrDuplicateTask)
			return c.JSON(http.StatusConflict, errorResponse{Error: errTaskExists})
		default:
			reserved = true
		}
	}

	storeStart := time.Now()
	createErr := h.store.CreateTask(ctx, t)
	metrics.ObserveStore(time.Since(storeStart))
	if createErr != nil {
		if reserved {
			h.release(ctx, t.TaskID)
		}
		if errors.Is(createErr, domain.ErrDuplicateTask) {
			metrics.Fail("storage", createErr)
			return c.JSON(http.StatusConflict, errorResponse{Error: errTaskExists})
		}
		metrics.Fail("storage", createErr)
		h.log.WithError(createErr).WithField("taskID", t.TaskID).Error("create task failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: errCreateFailed})
	}
	return c.JSON(http.StatusCreated, messageResponse{Message: msgTaskCreated, TaskID: t.TaskID})
}

func (h *handler) listTasks(c echo.Context) (err error) {
	metrics, ctx := h.begin(c, "list")
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	// No task is stored with a blank owner, so a missing userId lists nothing.
	userID := strings.TrimSpace(c.QueryParam("userId"))
	if userID == "" {
		metrics.SetTasksReturned(0)
		return c.JSON(http.StatusOK, tasksResponse{Tasks: []domain.Task{}})
	}

	storeStart := time.Now()
	tasks, listErr := h.store.ListTasks(ctx, userID)
	metrics.ObserveStore(time.Since(storeStart))
	if listErr != nil {
		metrics.Fail("storage", listErr)
		h.log.WithError(listErr).WithField("userId", userID).Error("list tasks failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: errFetchFailed})
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	metrics.SetTasksReturned(len(tasks))
	return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
}

// updateTask overwrites the mutable fields of a task. pathID is the id from
// the URL, if any; it must agree with the body when both are present.
func (h *handler) updateTask(c echo.Context, pathID string) (err error) {
	metrics, ctx := h.begin(c, "update")
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	decodeStart := time.Now()
	var p taskPayload
	if decodeErr := decodeJSON(c, &p); decodeErr != nil {
		return badBody(c, metrics, decodeErr)
	}
	taskID, idErr := updateTaskID(pathID, p.TaskID)
	t, convErr := p.toTask()
	if idErr != nil {
		convErr = idErr
	}
	if convErr == nil {
		t.TaskID = taskID
		convErr = t.ValidateMutable()
	}
	metrics.ObserveDecode(time.Since(decodeStart))
	if convErr != nil {
		metrics.Fail("validate", convErr)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: convErr.Error()})
	}

	storeStart := time.Now()
	n, updateErr := h.store.UpdateTask(ctx, t)
	metrics.ObserveStore(time.Since(storeStart))
	if updateErr != nil {
		metrics.Fail("storage", updateErr)
		h.log.WithError(updateErr).WithField("taskID", taskID).Error("update task failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: errUpdateFailed})
	}
	metrics.SetRowsAffected(n)
	if n == 0 {
		metrics.Fail("not_found", nil)
		return c.JSON(http.StatusNotFound, errorResponse{Error: errTaskNotFound})
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgTaskUpdated, TaskID: taskID})
}

func badBody(c echo.Context, metrics *taskRequestMetrics, err error) error {
	metrics.Fail("decode", err)
	if errors.Is(err, errBodyTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: errBodyTooLarge.Error()})
	}
	return c.JSON(http.StatusBadRequest, errorResponse{Error: errInvalidBody})
}

func updateTaskID(pathID string, bodyID *int64) (int64, error) {
	if pathID == "" {
		if bodyID == nil || *bodyID <= 0 {
			return 0, &domain.ValidationError{Field: "taskID", Reason: "must be a positive number"}
		}
		return *bodyID, nil
	}
	id, err := parseTaskID(pathID)
	if err != nil {
		return 0, err
	}
	if bodyID != nil && *bodyID != id {
		return 0, &domain.ValidationError{Field: "taskID", Reason: "does not match the request path"}
	}
	return id, nil
}

func (h *handler) deleteTask(c echo.Context, rawID string) (err error) {
	metrics, ctx := h.begin(c, "delete")
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	taskID, idErr := parseTaskID(strings.TrimSpace(rawID))
	if idErr != nil {
		metrics.Fail("validate", idErr)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: idErr.Error()})
	}

	storeStart := time.Now()
	n, deleteErr := h.store.DeleteTask(ctx, taskID)
	metrics.ObserveStore(time.Since(storeStart))
	if deleteErr != nil {
		metrics.Fail("storage", deleteErr)
		h.log.WithError(deleteErr).WithField("taskID", taskID).Error("delete task failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: errDeleteFailed})
	}
	metrics.SetRowsAffected(n)
	if n == 0 {
		metrics.Fail("not_found", nil)
		return c.JSON(http.StatusNotFound, errorResponse{Error: errTaskNotFound})
	}
	if h.reserver != nil {
		h.release(ctx, taskID)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgTaskDeleted, TaskID: taskID})
}

func (h *handler) release(ctx context.Context, taskID int64) {
	if err := h.reserver.Release(context.WithoutCancel(ctx), taskID); err != nil {
		h.log.WithError(err).WithField("taskID", taskID).Warn("task id release failed")
	}
}

func (h *handler) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check failed")
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"weather-tasks/api"
	"weather-tasks/config"
	"weather-tasks/storage"
)

const feed = `{"tasks":[{"id":1,"task":"Planting","weatherRestrictions":["sunny"],"requiredTemperature":{"min":22,"max":30}}]}`

func setup(t *testing.T) (config.Client, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger, _ := test.NewNullLogger()
	e := echo.New()
	e.JSONSerializer = api.JSONSerializer{}
	api.Register(e, store, nil, logger)
	apiSrv := httptest.NewServer(e)
	t.Cleanup(apiSrv.Close)

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(feedSrv.Close)

	return config.Client{
		APIURL:       apiSrv.URL,
		TemplateFeed: feedSrv.URL,
		IdentityFile: filepath.Join(t.TempDir(), "device-id"),
	}, store
}

func run(t *testing.T, cfg config.Client, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTaskctlScheduleListUpdateDelete(t *testing.T) {
	cfg, store := setup(t)

	userID, err := run(t, cfg, "whoami")
	require.NoError(t, err)
	userID = strings.TrimSpace(userID)
	require.Len(t, userID, 36)

	out, err := run(t, cfg, "templates")
	require.NoError(t, err)
	require.Contains(t, out, "Planting")
	require.Contains(t, out, "22-30")
	require.Contains(t, out, "60-85")

	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	out, err = run(t, cfg, "schedule", "--template", "1", "--date", tomorrow, "--time", "08:00", "--location", "Sorsogon City")
	require.NoError(t, err)
	require.Contains(t, out, "Task scheduled successfully!")

	tasks, err := store.ListTasks(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, 12.9742, tasks[0].Lat)
	taskID := strconv.FormatInt(tasks[0].TaskID, 10)

	out, err = run(t, cfg, "list")
	require.NoError(t, err)
	require.Contains(t, out, taskID)
	require.Contains(t, out, "sunny")

	_, err = run(t, cfg, "update", taskID, "--time", "09:30")
	require.NoError(t, err)
	tasks, err = store.ListTasks(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, "09:30", tasks[0].Time)
	require.Equal(t, tomorrow, tasks[0].Date)

	_, err = run(t, cfg, "update", taskID, "--location", "Atlantis")
	require.ErrorContains(t, err, "location")
	tasks, err = store.ListTasks(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, "Sorsogon City", tasks[0].Location)
	require.Equal(t, 124.0058, tasks[0].Lon)

	out, err = run(t, cfg, "--json", "list")
	require.NoError(t, err)
	require.Contains(t, out, `"time": "09:30"`)

	out, err = run(t, cfg, "delete", taskID)
	require.NoError(t, err)
	require.Contains(t, out, "Task deleted successfully")
	tasks, err = store.ListTasks(context.Background(), userID)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestTaskctlErrors(t *testing.T) {
	cfg, _ := setup(t)

	_, err := run(t, cfg, "schedule", "--template", "1", "--date", "2000-01-01")
	require.Error(t, err)

	_, err = run(t, cfg, "delete", "abc")
	require.Error(t, err)

	_, err = run(t, cfg, "delete", "12345")
	require.Error(t, err)

	_, err = run(t, cfg, "schedule", "--date", "2999-01-01")
	require.Error(t, err)

	_, err = run(t, cfg, "schedule", "--template", "1", "--date", "2999-01-01", "--location", "Atlantis")
	require.ErrorContains(t, err, "unknown location")
}

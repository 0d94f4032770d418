package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"weather-tasks/api"
	"weather-tasks/domain"
	"weather-tasks/storage"
)

const feed = `{"tasks":[` +
	`{"id":1,"task":"Planting","weatherRestrictions":["sunny","cloudy"],"details":"Plant rice seedlings",` +
	`"requiredTemperature":{"min":22,"max":30},"idealHumidity":{"min":50,"max":80}},` +
	`{"id":"harvest","task":"Harvesting"}]}`

func newAPIServer(t *testing.T, store api.Storage) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := echo.New()
	e.JSONSerializer = api.JSONSerializer{}
	api.Register(e, store, nil, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func newFeedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var fixedNow = time.Date(2025, time.March, 10, 15, 0, 0, 0, time.Local)

func newTestController(t *testing.T, taskAPI TaskAPI, catalog Catalog, identity Identity) *Controller {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c := NewController(taskAPI, catalog, identity, logger)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestControllerScheduleAndManage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	srv := newAPIServer(t, store)
	catalog := NewHTTPCatalog(newFeedServer(t, feed).URL)
	c := newTestController(t, New(srv.URL), catalog, StaticIdentity("device-1"))

	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Load(ctx))
	require.Equal(t, StateReady, c.State())
	require.Equal(t, "device-1", c.UserID())
	require.Len(t, c.Templates(), 2)
	require.Empty(t, c.Tasks())

	c.SetForm(Form{TemplateID: "1", Date: "2025-03-10", Time: "08:00", Location: "Sorsogon City"})
	created, err := c.Schedule(ctx)
	require.NoError(t, err)
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, Form{}, c.Form())
	require.Equal(t, "Planting", created.Task)
	require.Equal(t, 12.9742, created.Lat)
	require.Equal(t, 124.0058, created.Lon)
	require.Equal(t, domain.WeatherSet{"sunny", "cloudy"}, created.WeatherRestrictions)
	require.Equal(t, []domain.Task{created}, c.Tasks())

	remote, err := store.ListTasks(ctx, "device-1")
	require.NoError(t, err)
	require.Len(t, remote, 1)
	require.Equal(t, created.TaskID, remote[0].TaskID)

	c.SetForm(Form{TemplateID: "harvest", Date: "2025-04-01", Time: "06:30", Location: "Sorsogon City"})
	defaults, err := c.Schedule(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.WeatherSet{}, defaults.WeatherRestrictions)
	require.Equal(t, domain.DefaultRequiredTemperature, defaults.RequiredTemperature)
	require.Equal(t, domain.DefaultIdealHumidity, defaults.IdealHumidity)
	require.Equal(t, domain.DefaultDetails, defaults.Details)

	require.NoError(t, c.Edit(created.TaskID))
	require.Equal(t, StateEditing, c.State())
	draft, ok := c.Draft()
	require.True(t, ok)
	draft.Time = "09:00"
	draft.UserID = "someone-else"
	require.NoError(t, c.SetDraft(draft))
	require.NoError(t, c.Save(ctx))
	require.Equal(t, StateReady, c.State())

	local := c.Tasks()
	require.Equal(t, "09:00", local[0].Time)
	require.Equal(t, "device-1", local[0].UserID)
	remote, err = store.ListTasks(ctx, "device-1")
	require.NoError(t, err)
	for _, task := range remote {
		if task.TaskID == created.TaskID {
			require.Equal(t, "09:00", task.Time)
		}
	}

	require.NoError(t, c.Edit(created.TaskID))
	require.NoError(t, c.Delete(ctx))
	require.Equal(t, StateReady, c.State())
	require.Len(t, c.Tasks(), 1)
	require.Equal(t, defaults.TaskID, c.Tasks()[0].TaskID)
	remote, err = store.ListTasks(ctx, "device-1")
	require.NoError(t, err)
	require.Len(t, remote, 1)
}

func TestControllerLoadsExistingTasks(t *testing.T) {
	store := storage.NewMemoryStore()
	existing := domain.ApplyDefaults(domain.Task{UserID: "device-1", TaskID: 42, Task: "Fishing"}, nil, nil, nil)
	require.NoError(t, store.CreateTask(context.Background(), existing))
	srv := newAPIServer(t, store)

	c := newTestController(t, New(srv.URL), StaticCatalog{}, StaticIdentity("device-1"))
	require.NoError(t, c.Load(context.Background()))
	require.Equal(t, []domain.Task{existing}, c.Tasks())
}

func TestControllerScheduleValidation(t *testing.T) {
	templates := StaticCatalog{{ID: "1", Task: "Planting"}}
	cases := []struct {
		name     string
		identity Identity
		form     Form
		want     error
	}{
		{name: "past_date", identity: StaticIdentity("u"), form: Form{TemplateID: "1", Date: "2025-03-09"}, want: ErrDateInPast},
		{name: "no_template", identity: StaticIdentity("u"), form: Form{Date: "2025-03-11"}, want: ErrNoTemplate},
		{name: "unknown_template", identity: StaticIdentity("u"), form: Form{TemplateID: "9", Date: "2025-03-11"}, want: ErrNoTemplate},
		{name: "no_identity", identity: StaticIdentity(""), form: Form{TemplateID: "1", Date: "2025-03-11"}, want: ErrNoIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeAPI{}
			c := newTestController(t, fake, templates, tc.identity)
			_ = c.Load(context.Background())
			c.SetForm(tc.form)

			_, err := c.Schedule(context.Background())
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, tc.form, c.Form())
			require.Empty(t, fake.created)
		})
	}
}

func TestControllerScheduleRejectsMalformedDate(t *testing.T) {
	c := newTestController(t, &fakeAPI{}, StaticCatalog{{ID: "1", Task: "Planting"}}, StaticIdentity("u"))
	require.NoError(t, c.Load(context.Background()))
	c.SetForm(Form{TemplateID: "1", Date: "next tuesday"})

	_, err := c.Schedule(context.Background())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "date", verr.Field)
}

func TestControllerScheduleRejectsUnknownLocation(t *testing.T) {
	for _, location := range []string{"Atlantis", ""} {
		t.Run("location_"+location, func(t *testing.T) {
			fake := &fakeAPI{}
			c := newTestController(t, fake, StaticCatalog{{ID: "1", Task: "Planting"}}, StaticIdentity("u"))
			require.NoError(t, c.Load(context.Background()))
			form := Form{TemplateID: "1", Date: "2025-03-11", Time: "08:00", Location: location}
			c.SetForm(form)

			_, err := c.Schedule(context.Background())
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, "location", verr.Field)
			require.Empty(t, fake.created)
			require.Equal(t, form, c.Form())
			require.Equal(t, StateReady, c.State())
		})
	}
}

type fakeAPI struct {
	tasks   []domain.Task
	err     error
	created []domain.Task
}

func (f *fakeAPI) CreateTask(_ context.Context, t domain.Task) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, t)
	return t.TaskID, nil
}

func (f *fakeAPI) ListTasks(context.Context, string) ([]domain.Task, error) {
	return append([]domain.Task(nil), f.tasks...), nil
}

func (f *fakeAPI) UpdateTask(context.Context, domain.Task) error { return f.err }

func (f *fakeAPI) DeleteTask(context.Context, int64) error { return f.err }

func TestControllerFailuresLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	listed := domain.ApplyDefaults(domain.Task{UserID: "u", TaskID: 5, Task: "Planting", Time: "08:00"}, nil, nil, nil)
	fake := &fakeAPI{tasks: []domain.Task{listed}}
	c := newTestController(t, fake, StaticCatalog{{ID: "1", Task: "Planting"}}, StaticIdentity("u"))
	require.NoError(t, c.Load(ctx))

	boom := &TransportError{Op: "update task", Err: errors.New("connection reset")}
	fake.err = boom

	form := Form{TemplateID: "1", Date: "2025-03-12", Time: "07:00", Location: "Sorsogon City"}
	c.SetForm(form)
	_, err := c.Schedule(ctx)
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateReady, c.State())
	require.Equal(t, form, c.Form())
	require.Equal(t, []domain.Task{listed}, c.Tasks())
	require.ErrorIs(t, c.Err(), boom)

	require.NoError(t, c.Edit(5))
	draft, _ := c.Draft()
	draft.Time = "10:00"
	require.NoError(t, c.SetDraft(draft))

	require.ErrorIs(t, c.Save(ctx), boom)
	require.Equal(t, StateEditing, c.State())
	require.Equal(t, "08:00", c.Tasks()[0].Time)

	require.ErrorIs(t, c.Delete(ctx), boom)
	require.Equal(t, StateEditing, c.State())
	require.Len(t, c.Tasks(), 1)

	c.Cancel()
	require.Equal(t, StateReady, c.State())
	_, ok := c.Draft()
	require.False(t, ok)
}

func TestControllerRejectsInvalidTransitions(t *testing.T) {
	c := newTestController(t, &fakeAPI{}, StaticCatalog{}, StaticIdentity("u"))
	var stateErr *InvalidStateError

	require.ErrorAs(t, c.Save(context.Background()), &stateErr)
	require.ErrorAs(t, c.Delete(context.Background()), &stateErr)
	require.ErrorAs(t, c.SetDraft(domain.Task{}), &stateErr)
	require.ErrorIs(t, c.Edit(99), ErrTaskNotListed)
}

func TestControllerLoadCatalogFailure(t *testing.T) {
	fake := &fakeAPI{tasks: []domain.Task{{UserID: "u", TaskID: 1}}}
	catalog := NewHTTPCatalog(newFeedServer(t, `{"tasks":{"id":1}}`).URL)
	c := newTestController(t, fake, catalog, StaticIdentity("u"))

	err := c.Load(context.Background())
	require.ErrorIs(t, err, ErrInvalidCatalog)
	require.Equal(t, StateIdle, c.State())
	require.Len(t, c.Tasks(), 1)

	c.SetForm(Form{TemplateID: "1", Date: "2025-03-11"})
	_, err = c.Schedule(context.Background())
	require.ErrorIs(t, err, ErrCatalogNotReady)
}

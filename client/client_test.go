package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daveduya011/wph-task-manager/api"
	"github.com/daveduya011/wph-task-manager/domain"
	"github.com/daveduya011/wph-task-manager/storage"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store, err := storage.OpenSQL(ctx, storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, storage.Migrate(ctx, store.DB(), storage.DriverSQLite))

	logger, _ := test.NewNullLogger()
	e := echo.New()
	require.NoError(t, api.Register(e, api.Deps{
		Store:    store,
		Accounts: store,
		Sessions: api.NewSessions([]byte("secret"), time.Hour, nil),
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstAPI(t *testing.T) {
	srv := newAPIServer(t)
	ctx := context.Background()
	c := New(srv.URL, "")

	_, err := c.ListTasks(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, Result{Error: "Unauthorized"}, ResultOf(err))

	acct, err := c.SignUp(ctx, domain.Credentials{Name: "Ada", Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)
	assert.NotEmpty(t, c.Session())

	created, err := c.CreateTask(ctx, domain.TaskFields{Title: "Write report", Priority: domain.PriorityHigh, Status: domain.StatusTodo})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	status := domain.StatusInProgress
	updated, err := c.UpdateTask(ctx, created.ID, domain.TaskPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
	assert.Equal(t, "Write report", updated.Title)

	tasks, err := c.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, updated, tasks[0])

	require.NoError(t, c.DeleteTask(ctx, created.ID))
	_, err = c.GetTask(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, Result{Error: "Task not found"}, ResultOf(err))

	_, err = c.CreateTask(ctx, domain.TaskFields{Title: "", Priority: domain.PriorityHigh, Status: domain.StatusTodo})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title: Title is required", ResultOf(err).Error)

	layout, err := c.Layout(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LayoutKanban, layout)
	require.NoError(t, c.SetLayout(ctx, domain.LayoutTable))
	layout, err = c.Layout(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LayoutTable, layout)

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, c.Session())

	_, err = c.SignIn(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Session())
}

func TestClientServerErrorsTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to fetch tasks"}`))
	}))
	t.Cleanup(srv.Close)

	logger, hook := test.NewNullLogger()
	c := New(srv.URL, "tok", WithLogger(logger), WithBreaker(BreakerSettings{FailureThreshold: 2, Timeout: time.Minute}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.ListTasks(ctx)
		require.Error(t, err)
		assert.True(t, domain.IsTransient(err))
		assert.Equal(t, Result{Error: "Failed to fetch tasks"}, ResultOf(err))
	}

	_, err := c.ListTasks(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
	assert.Equal(t, "open", c.BreakerState())
	assert.NotNil(t, hook.LastEntry())
}

func TestClientNotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Task not found"}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "tok", WithBreaker(BreakerSettings{FailureThreshold: 1}))
	for i := 0; i < 3; i++ {
		_, err := c.GetTask(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, "closed", c.BreakerState())
}

func TestClientSendsSessionAndIdempotencyKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("session_token")
		if err != nil || ck.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1","title":"t","priority":"Low","status":"To Do"}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "tok")
	for i := 0; i < 2; i++ {
		_, err := c.CreateTask(context.Background(), domain.TaskFields{Title: "t", Priority: domain.PriorityLow, Status: domain.StatusTodo})
		require.NoError(t, err)
	}
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1])
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, OK, ResultOf(nil))
	assert.Equal(t, Result{Error: "boom"}, ResultOf(errors.New("boom")))
	assert.Equal(t, Result{Error: "status: unknown status \"x\""},
		ResultOf(&domain.ValidationError{Field: "status", Reason: "unknown status \"x\""}))
	assert.Equal(t, Result{Error: "Task not found"}, ResultOf(domain.ErrNotFound))
}

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/daveduya011/wph-task-manager/domain"
	"github.com/daveduya011/wph-task-manager/events"
	"github.com/daveduya011/wph-task-manager/storage"
)

// HeaderIdempotencyKey lets clients retry a create safely.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxBodySize = 64 * 1024 // 64 KiB

const (
	msgUnauthorized  = "Unauthorized"
	msgTaskNotFound  = "Task not found"
	msgInvalidBody   = "invalid body"
	msgDuplicate     = "Duplicate request"
	msgFetchTasks    = "Failed to fetch tasks"
	msgCreateTask    = "Failed to create task"
	msgFetchTask     = "Failed to fetch task"
	msgUpdateTask    = "Failed to update task"
	msgDeleteTask    = "Failed to delete task"
	msgTaskDeleted   = "Task deleted"
	tasksRoute       = "/api/tasks"
	taskRoute        = "/api/tasks/:id"
	idempotencyStage = "idempotency"
)

// instrument starts request metrics and logs them once h returns.
func instrument(logger *log.Logger, route string, h func(echo.Context, *requestMetrics) error) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, route, c.Request().Method)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		return h(c, metrics)
	}
}

func authenticate(c echo.Context, auth Authenticator, metrics *requestMetrics) (string, error) {
	start := time.Now()
	sub, err := sessionFromRequest(c, auth)
	metrics.ObserveAuth(time.Since(start))
	if err != nil {
		metrics.SetErrorStage("auth")
	}
	return sub, err
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody{Error: msgUnauthorized})
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(v)
}

// storeFailure maps a store error onto the HTTP taxonomy. fallback is the
// message returned for anything that is not a known domain error.
func storeFailure(c echo.Context, metrics *requestMetrics, logger *log.Logger, err error, fallback string) error {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, errorBody{Error: msgTaskNotFound})
	case errors.As(err, &ve):
		metrics.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorBody{Error: ve.Error()})
	case errors.Is(err, domain.ErrConflict):
		metrics.SetErrorStage("conflict")
		return c.JSON(http.StatusConflict, errorBody{Error: msgDuplicate})
	}
	metrics.SetErrorStage("storage")
	logger.WithError(err).WithField("route", metrics.route).Error(fallback)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: fallback})
}

// publish hands ev to pub. Delivery failures never fail the request.
func publish(ctx context.Context, pub events.Publisher, logger *log.Logger, ev events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		logger.WithError(err).WithFields(log.Fields{"event": ev.Type, "task": ev.TaskID}).Warn("publish task event")
	}
}

func listTasks(store storage.TaskStore, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, tasksRoute, func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return unauthorized(c)
		}
		start := time.Now()
		tasks, err := store.List(c.Request().Context())
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeFailure(c, metrics, logger, err, msgFetchTasks)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		metrics.SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, tasks)
	})
}

func createTask(store storage.TaskStore, auth Authenticator, dedupe Deduper, pub events.Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, tasksRoute, func(c echo.Context, metrics *requestMetrics) error {
		sub, err := authenticate(c, auth, metrics)
		if err != nil {
			return unauthorized(c)
		}
		var fields domain.TaskFields
		if err := decodeBody(c, &fields); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Error: msgInvalidBody})
		}

		ctx := c.Request().Context()
		key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		metrics.SetIdempotencyKey(key != "")
		recorded := false
		if key != "" && dedupe != nil {
			added, err := dedupe.Add(ctx, sub, key)
			switch {
			case err != nil:
				logger.WithError(err).Warn("idempotency check failed; processing request")
			case !added:
				metrics.SetErrorStage(idempotencyStage)
				return c.JSON(http.StatusConflict, errorBody{Error: msgDuplicate})
			default:
				recorded = true
			}
		}

		start := time.Now()
		task, err := store.Create(ctx, fields)
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			if recorded {
				if rerr := dedupe.Remove(ctx, sub, key); rerr != nil {
					logger.WithError(rerr).Warn("release idempotency key")
				}
			}
			return storeFailure(c, metrics, logger, err, msgCreateTask)
		}
		publish(ctx, pub, logger, events.New(events.TaskCreated, task.ID, &task))
		return c.JSON(http.StatusCreated, task)
	})
}

func getTask(store storage.TaskStore, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, taskRoute, func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return unauthorized(c)
		}
		start := time.Now()
		task, err := store.Get(c.Request().Context(), c.Param("id"))
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeFailure(c, metrics, logger, err, msgFetchTask)
		}
		metrics.SetTasksReturned(1)
		return c.JSON(http.StatusOK, task)
	})
}

func updateTask(store storage.TaskStore, auth Authenticator, pub events.Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, taskRoute, func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return unauthorized(c)
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Error: msgInvalidBody})
		}
		ctx := c.Request().Context()
		start := time.Now()
		task, err := store.Update(ctx, c.Param("id"), patch)
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeFailure(c, metrics, logger, err, msgUpdateTask)
		}
		publish(ctx, pub, logger, events.New(events.TaskUpdated, task.ID, &task))
		metrics.SetTasksReturned(1)
		return c.JSON(http.StatusOK, task)
	})
}

func deleteTask(store storage.TaskStore, auth Authenticator, pub events.Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, taskRoute, func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return unauthorized(c)
		}
		ctx := c.Request().Context()
		id := c.Param("id")
		start := time.Now()
		err := store.Delete(ctx, id)
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeFailure(c, metrics, logger, err, msgDeleteTask)
		}
		publish(ctx, pub, logger, events.New(events.TaskDeleted, id, nil))
		return c.JSON(http.StatusOK, messageBody{Message: msgTaskDeleted})
	})
}

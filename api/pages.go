package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/daveduya011/wph-task-manager/domain"
	"github.com/daveduya011/wph-task-manager/storage"
)

// Page handlers return JSON view models for the board shell. The guard has
// already checked cookie presence; these handlers validate the token and
// send stale sessions back to sign-in.

type boardView struct {
	Layout  domain.Layout   `json:"layout"`
	Columns []domain.Column `json:"columns"`
}

type taskView struct {
	Task domain.Task `json:"task"`
}

type taskFormView struct {
	Form       string            `json:"form"`
	Defaults   domain.TaskFields `json:"defaults"`
	Priorities []domain.Priority `json:"priorities"`
	Statuses   []domain.Status   `json:"statuses"`
}

type authFormView struct {
	Form   string   `json:"form"`
	Fields []string `json:"fields"`
	Submit string   `json:"submit"`
}

func expiredSession(c echo.Context, secure bool) error {
	clearSessionCookie(c, secure)
	return c.Redirect(http.StatusSeeOther, SignInPath)
}

func homePage(store storage.TaskStore, auth Authenticator, secure bool, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, HomePath, func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return expiredSession(c, secure)
		}
		start := time.Now()
		tasks, err := store.List(c.Request().Context())
		metrics.ObserveStore(time.Since(start))
		if err != nil {
			return storeFailure(c, metrics, logger, err, msgFetchTasks)
		}
		metrics.SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, boardView{
			Layout:  layoutFromRequest(c),
			Columns: domain.Columns(tasks),
		})
	})
}

func newTaskPage() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, taskFormView{
			Form:       "task",
			Defaults:   domain.TaskFields{Priority: domain.PriorityMedium, Status: domain.StatusTodo},
			Priorities: domain.Priorities,
			Statuses:   domain.Statuses,
		})
	}
}

func taskPage(store storage.TaskStore, auth Authenticator, secure bool, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/task/:id", func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return expiredSession(c, secure)
		}
		start := time.Now()
		task, err := store.Get(c.Request().Context(), c.Param("id"))
		metrics.ObserveStore(time.Since(start))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return storeFailure(c, metrics, logger, err, msgFetchTask)
		}
		if err != nil {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorBody{Error: msgTaskNotFound})
		}
		return c.JSON(http.StatusOK, taskView{Task: task})
	})
}

func signInPage() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, authFormView{
			Form:   "signin",
			Fields: []string{"email", "password"},
			Submit: "/api/auth/signin",
		})
	}
}

func signUpPage() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, authFormView{
			Form:   "signup",
			Fields: []string{"name", "email", "password"},
			Submit: "/api/auth/signup",
		})
	}
}

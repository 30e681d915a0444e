package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/daveduya011/wph-task-manager/events"
	"github.com/daveduya011/wph-task-manager/storage"
)

// Deps carries everything the HTTP surface needs. Deduper, Events and
// Broker are optional.
type Deps struct {
	Store    storage.TaskStore
	Accounts storage.AccountStore
	Sessions *Sessions
	Guard    *SessionGuard
	Deduper  Deduper
	Events   events.Publisher
	Broker   *Broker

	// SecureCookies marks the session and layout cookies Secure.
	SecureCookies bool
	// Registry receives the HTTP and guard metrics. A private registry is
	// created when nil.
	Registry *prometheus.Registry
	Logger   *log.Logger
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when the store rejects the
	// write so the caller may retry.
	Remove(ctx context.Context, scope, key string) error
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

// Register wires up all API and page routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) error {
	if d.Store == nil || d.Accounts == nil || d.Sessions == nil || d.Logger == nil {
		return errors.New("api: store, accounts, sessions and logger are required")
	}
	if d.Guard == nil {
		g, err := NewSessionGuard(DefaultRoutes())
		if err != nil {
			return err
		}
		d.Guard = g
	}
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := reg.Register(d.Guard.Collector()); err != nil {
		return err
	}

	e.Use(DecompressRequests())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "taskboard",
		Registerer: reg,
	}))
	e.Use(d.Guard.Middleware())

	auth := Authenticator(d.Sessions)
	logger := d.Logger

	e.GET("/api/tasks", listTasks(d.Store, auth, logger))
	e.POST("/api/tasks", createTask(d.Store, auth, d.Deduper, d.Events, logger))
	e.GET("/api/tasks/stream", streamTasks(d.Broker, auth, logger))
	e.GET("/api/tasks/:id", getTask(d.Store, auth, logger))
	e.PUT("/api/tasks/:id", updateTask(d.Store, auth, d.Events, logger))
	e.DELETE("/api/tasks/:id", deleteTask(d.Store, auth, d.Events, logger))

	e.GET("/api/layout", getLayout(auth, logger))
	e.PUT("/api/layout", putLayout(auth, d.SecureCookies, logger))

	e.POST("/api/auth/signup", signUp(d.Accounts, d.Sessions, d.SecureCookies, logger))
	e.POST("/api/auth/signin", signIn(d.Accounts, d.Sessions, d.SecureCookies, logger))
	e.POST("/api/auth/signout", signOut(d.SecureCookies))

	e.GET(HomePath, homePage(d.Store, auth, d.SecureCookies, logger))
	e.GET("/task", newTaskPage())
	e.GET("/task/:id", taskPage(d.Store, auth, d.SecureCookies, logger))
	e.GET(SignInPath, signInPage())
	e.GET("/signup", signUpPage())

	e.GET("/healthz", healthz(d.Store))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
	return nil
}

func healthz(store storage.TaskStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p, ok := store.(storage.Pinger); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

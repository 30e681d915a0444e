package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/daveduya011/wph-task-manager/domain"
)

const (
	sessionCookie     = "session_token"
	layoutCookie      = "layout"
	idempotencyHeader = "Idempotency-Key"
	maxResponseSize   = 4 << 20
)

// Client talks to the task API with a session cookie. Calls go through a
// circuit breaker that opens after consecutive transport or 5xx failures.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	breaker *gobreaker.CircuitBreaker[response]

	// mu guards the cookies the server hands back: the session token and
	// the layout preference.
	mu      sync.RWMutex
	cookies map[string]string
}

type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithLayout seeds the layout cookie, normally remembered from an earlier
// SetLayout.
func WithLayout(l domain.Layout) Option {
	return func(c *Client) {
		if l.Valid() {
			c.cookies[layoutCookie] = string(l)
		}
	}
}

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// WithBreaker overrides the default breaker thresholds.
func WithBreaker(s BreakerSettings) Option {
	return func(c *Client) { c.breaker = newBreaker(s, c.logger) }
}

// New creates a client for baseURL. session may be empty until SignIn.
func New(baseURL, session string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		cookies: map[string]string{},
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  log.StandardLogger(),
	}
	if session != "" {
		c.cookies[sessionCookie] = session
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(BreakerSettings{}, c.logger)
	}
	return c
}

func newBreaker(s BreakerSettings, logger *log.Logger) *gobreaker.CircuitBreaker[response] {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "task-api",
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

// Session returns the current session token.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookies[sessionCookie]
}

func (c *Client) keep(ck *http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ck.MaxAge < 0 || ck.Value == "" {
		delete(c.cookies, ck.Name)
		return
	}
	c.cookies[ck.Name] = ck.Value
}

func (c *Client) addCookies(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// BreakerState reports the breaker state for diagnostics.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = sonic.Marshal(body); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	resp, err := c.breaker.Execute(func() (response, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return response{}, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		c.addCookies(req)
		hr, err := c.http.Do(req)
		if err != nil {
			return response{}, err
		}
		defer hr.Body.Close()
		data, err := io.ReadAll(io.LimitReader(hr.Body, maxResponseSize))
		if err != nil {
			return response{}, err
		}
		r := response{status: hr.StatusCode, body: data, cookies: hr.Cookies()}
		if hr.StatusCode >= http.StatusInternalServerError {
			// 5xx counts against the breaker; the body still carries the message.
			return r, &StatusError{Method: method, Path: path, Status: r.status, Message: errorMessage(r.body)}
		}
		return r, nil
	})
	if err != nil {
		return breakerErr(err)
	}
	for _, ck := range resp.cookies {
		if ck.Name == sessionCookie || ck.Name == layoutCookie {
			c.keep(ck)
		}
	}
	if resp.status >= http.StatusBadRequest {
		return &StatusError{Method: method, Path: path, Status: resp.status, Message: errorMessage(resp.body)}
	}
	if out != nil && len(resp.body) > 0 {
		if err := sonic.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

// ListTasks returns every task.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &t)
	return t, err
}

// CreateTask creates a task. Each call carries a fresh idempotency key.
func (c *Client) CreateTask(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	var t domain.Task
	headers := map[string]string{idempotencyHeader: uuid.NewString()}
	err := c.do(ctx, http.MethodPost, "/api/tasks", f, headers, &t)
	return t, err
}

// UpdateTask applies a partial update and returns the stored task.
func (c *Client) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodPut, taskPath(id), p, nil, &t)
	return t, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil)
}

type layoutBody struct {
	Layout domain.Layout `json:"layout"`
}

// Layout returns the stored layout preference.
func (c *Client) Layout(ctx context.Context) (domain.Layout, error) {
	var b layoutBody
	if err := c.do(ctx, http.MethodGet, "/api/layout", nil, nil, &b); err != nil {
		return "", err
	}
	return domain.ParseLayout(string(b.Layout)), nil
}

// SetLayout stores the layout preference.
func (c *Client) SetLayout(ctx context.Context, l domain.Layout) error {
	return c.do(ctx, http.MethodPut, "/api/layout", layoutBody{Layout: l}, nil, nil)
}

type accountBody struct {
	Account domain.Account `json:"account"`
}

// SignUp creates an account and keeps the returned session.
func (c *Client) SignUp(ctx context.Context, creds domain.Credentials) (domain.Account, error) {
	var b accountBody
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", creds, nil, &b)
	return b.Account, err
}

// SignIn authenticates and keeps the returned session.
func (c *Client) SignIn(ctx context.Context, email, password string) (domain.Account, error) {
	var b accountBody
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", domain.Credentials{Email: email, Password: password}, nil, &b)
	return b.Account, err
}

// SignOut drops the session.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", nil, nil, nil)
	c.keep(&http.Cookie{Name: sessionCookie, MaxAge: -1})
	return err
}

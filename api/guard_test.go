package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassify(t *testing.T) {
	g, err := NewSessionGuard(DefaultRoutes())
	if err != nil {
		t.Fatalf("default routes: %v", err)
	}
	tests := []struct {
		path string
		want RouteClass
	}{
		{"/", RouteProtected},
		{"/task", RouteProtected},
		{"/task/abc", RouteProtected},
		{"/task/abc/edit", RouteProtected},
		{"/tasks", RoutePublic},
		{"/signin", RouteAuthOnly},
		{"/signup", RouteAuthOnly},
		{"/signin/extra", RoutePublic},
		{"/api/tasks", RoutePublic},
		{"/healthz", RoutePublic},
	}
	for _, tt := range tests {
		if got := g.Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestNewSessionGuardRejectsOverlap(t *testing.T) {
	tables := []RouteTable{
		{Protected: []string{"/signin"}, AuthOnly: []string{"/signin"}},
		{Protected: []string{"/account/*"}, AuthOnly: []string{"/account/login"}},
		{Protected: []string{"/account"}, AuthOnly: []string{"/account/*"}},
		{Protected: []string{"/a/*"}, AuthOnly: []string{"/a/b/*"}},
		{Protected: []string{"/*"}, AuthOnly: []string{"/signin"}},
	}
	for _, table := range tables {
		if _, err := NewSessionGuard(table); err == nil {
			t.Errorf("expected overlap error for %+v", table)
		}
	}

	ok := RouteTable{Protected: []string{"/task/*", "/"}, AuthOnly: []string{"/tasks", "/signin"}}
	if _, err := NewSessionGuard(ok); err != nil {
		t.Fatalf("unexpected error for disjoint table: %v", err)
	}
}

func TestDecideTransitionTable(t *testing.T) {
	g, _ := NewSessionGuard(DefaultRoutes())
	tests := []struct {
		path       string
		hasSession bool
		want       string
	}{
		{"/signin", false, ""},
		{"/task/x", false, SignInPath},
		{"/about", false, ""},
		{"/signin", true, HomePath},
		{"/task/x", true, ""},
		{"/about", true, ""},
	}
	for _, tt := range tests {
		if got := g.Decide(tt.path, tt.hasSession); got != tt.want {
			t.Errorf("Decide(%q, %v) = %q, want %q", tt.path, tt.hasSession, got, tt.want)
		}
	}
}

func TestGuardMiddleware(t *testing.T) {
	g, _ := NewSessionGuard(DefaultRoutes())
	e := echo.New()
	e.Use(g.Middleware())
	reached := 0
	ok := func(c echo.Context) error {
		reached++
		return c.NoContent(http.StatusOK)
	}
	e.GET("/task/*", ok)
	e.GET("/signin", ok)

	serve := func(path, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := serve("/task/anything", "")
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != SignInPath {
		t.Fatalf("expected redirect to sign-in, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	if reached != 0 {
		t.Fatal("handler must not run for a redirected request")
	}

	if rec = serve("/task/anything", "tok"); rec.Code != http.StatusOK {
		t.Fatalf("expected request to proceed, got %d", rec.Code)
	}

	rec = serve("/signin", "tok")
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != HomePath {
		t.Fatalf("expected redirect home, got %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}

	if got := testutil.ToFloat64(g.redirects.WithLabelValues(SignInPath)); got != 1 {
		t.Fatalf("expected one sign-in redirect counted, got %v", got)
	}
	if got := testutil.ToFloat64(g.redirects.WithLabelValues(HomePath)); got != 1 {
		t.Fatalf("expected one home redirect counted, got %v", got)
	}
}

func TestGuardTreatsEmptyCookieAsAbsent(t *testing.T) {
	g, _ := NewSessionGuard(DefaultRoutes())
	e := echo.New()
	e.Use(g.Middleware())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: ""})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect for empty cookie, got %d", rec.Code)
	}
}

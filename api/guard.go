package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// RouteClass is the access class of a page path.
type RouteClass int

const (
	RoutePublic RouteClass = iota
	RouteProtected
	RouteAuthOnly
)

func (c RouteClass) String() string {
	switch c {
	case RouteProtected:
		return "protected"
	case RouteAuthOnly:
		return "auth-only"
	default:
		return "public"
	}
}

// Redirect targets used by the guard.
const (
	SignInPath = "/signin"
	HomePath   = "/"
)

// RouteTable lists the page patterns of each class. A pattern ending in
// "/*" matches its root path and every path below it; any other pattern
// matches exactly. Paths listed in neither set are public.
type RouteTable struct {
	Protected []string
	AuthOnly  []string
}

// DefaultRoutes returns the page table of the task board.
func DefaultRoutes() RouteTable {
	return RouteTable{
		Protected: []string{"/", "/task", "/task/*"},
		AuthOnly:  []string{"/signin", "/signup"},
	}
}

// SessionGuard gates page requests on session cookie presence. It does not
// validate the token; handlers behind it do.
type SessionGuard struct {
	table     RouteTable
	redirects *prometheus.CounterVec
}

// NewSessionGuard checks that no path can be both protected and auth-only.
func NewSessionGuard(table RouteTable) (*SessionGuard, error) {
	for _, p := range table.Protected {
		for _, a := range table.AuthOnly {
			if patternsOverlap(p, a) {
				return nil, fmt.Errorf("route %q is both protected and auth-only (overlaps %q)", p, a)
			}
		}
	}
	return &SessionGuard{
		table: table,
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_guard_redirects_total",
			Help: "Page requests redirected by the session guard.",
		}, []string{"target"}),
	}, nil
}

// Collector exposes the redirect counter for registration.
func (g *SessionGuard) Collector() prometheus.Collector { return g.redirects }

// Classify returns the class of path.
func (g *SessionGuard) Classify(path string) RouteClass {
	for _, p := range g.table.Protected {
		if matchPattern(p, path) {
			return RouteProtected
		}
	}
	for _, p := range g.table.AuthOnly {
		if matchPattern(p, path) {
			return RouteAuthOnly
		}
	}
	return RoutePublic
}

// Decide returns the redirect target for a request, or "" to let it pass.
func (g *SessionGuard) Decide(path string, hasSession bool) string {
	switch g.Classify(path) {
	case RouteProtected:
		if !hasSession {
			return SignInPath
		}
	case RouteAuthOnly:
		if hasSession {
			return HomePath
		}
	}
	return ""
}

// Middleware applies Decide before any handler runs.
func (g *SessionGuard) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if target := g.Decide(c.Request().URL.Path, hasSessionCookie(c)); target != "" {
				g.redirects.WithLabelValues(target).Inc()
				return c.Redirect(http.StatusSeeOther, target)
			}
			return next(c)
		}
	}
}

func hasSessionCookie(c echo.Context) bool {
	cookie, err := c.Cookie(SessionCookie)
	return err == nil && cookie.Value != ""
}

func wildcardRoot(pattern string) (string, bool) {
	if !strings.HasSuffix(pattern, "/*") {
		return "", false
	}
	return strings.TrimSuffix(pattern, "/*"), true
}

func matchPattern(pattern, path string) bool {
	root, ok := wildcardRoot(pattern)
	if !ok {
		return path == pattern
	}
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

func patternsOverlap(a, b string) bool {
	ra, wa := wildcardRoot(a)
	rb, wb := wildcardRoot(b)
	switch {
	case wa && wb:
		return matchPattern(a, orRoot(rb)) || matchPattern(b, orRoot(ra))
	case wa:
		return matchPattern(a, b)
	case wb:
		return matchPattern(b, a)
	}
	return a == b
}

func orRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

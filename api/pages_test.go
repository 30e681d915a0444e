package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/daveduya011/wph-task-manager/domain"
)

func TestPagesRedirectWithoutSession(t *testing.T) {
	srv := newTestServer(t, newMockStore(), nil)
	for _, path := range []string{"/", "/task", "/task/anything"} {
		rec := srv.do(t, http.MethodGet, path, "", false)
		if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != SignInPath {
			t.Fatalf("%s: expected redirect to sign-in, got %d", path, rec.Code)
		}
	}
	for _, path := range []string{"/signin", "/signup"} {
		rec := srv.do(t, http.MethodGet, path, "", true)
		if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != HomePath {
			t.Fatalf("%s: expected redirect home, got %d", path, rec.Code)
		}
		if rec = srv.do(t, http.MethodGet, path, "", false); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected form without session, got %d", path, rec.Code)
		}
	}
}

func TestHomePageGroupsColumns(t *testing.T) {
	store := newMockStore(
		domain.Task{ID: "1", Title: "a", Priority: domain.PriorityLow, Status: domain.StatusTodo},
		domain.Task{ID: "2", Title: "b", Priority: domain.PriorityHigh, Status: domain.StatusCompleted},
	)
	srv := newTestServer(t, store, nil)
	rec := srv.do(t, http.MethodGet, "/", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view boardView
	if err := sonic.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Layout != domain.LayoutKanban {
		t.Fatalf("unexpected layout %q", view.Layout)
	}
	if len(view.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(view.Columns))
	}
	if len(view.Columns[0].Tasks) != 1 || len(view.Columns[1].Tasks) != 0 || len(view.Columns[2].Tasks) != 1 {
		t.Fatalf("unexpected grouping: %#v", view.Columns)
	}
}

func TestHomePageStaleSession(t *testing.T) {
	srv := newTestServer(t, newMockStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
	rec := httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != SignInPath {
		t.Fatalf("expected redirect to sign-in, got %d", rec.Code)
	}
	if c := sessionFrom(rec); c == nil || c.MaxAge >= 0 {
		t.Fatal("expected the stale cookie to be cleared")
	}
}

func TestStaleSessionCookieFollowsSecureSetting(t *testing.T) {
	for _, secure := range []bool{false, true} {
		srv := newTestServer(t, newMockStore(), func(d *Deps) { d.SecureCookies = secure })
		for _, path := range []string{"/", "/task/1"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
			rec := httptest.NewRecorder()
			srv.e.ServeHTTP(rec, req)
			c := sessionFrom(rec)
			if c == nil || c.MaxAge >= 0 {
				t.Fatalf("%s: expected the stale cookie to be cleared", path)
			}
			if c.Secure != secure {
				t.Fatalf("%s: expected Secure=%v on the cleared cookie", path, secure)
			}
		}
	}
}

func TestTaskPages(t *testing.T) {
	store := newMockStore(domain.Task{ID: "1", Title: "a", Priority: domain.PriorityLow, Status: domain.StatusTodo})
	srv := newTestServer(t, store, nil)

	rec := srv.do(t, http.MethodGet, "/task", "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"priority":"Medium"`) || !strings.Contains(rec.Body.String(), `"status":"To Do"`) {
		t.Fatalf("unexpected form view: %d %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/task/1", "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"title":"a"`) {
		t.Fatalf("unexpected task view: %d %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/task/missing", "", true)
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != msgTaskNotFound {
		t.Fatalf("expected not found view, got %d", rec.Code)
	}
}

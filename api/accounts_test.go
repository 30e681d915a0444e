package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func sessionFrom(rec interface{ Result() *http.Response }) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestSignUpSignInSignOut(t *testing.T) {
	srv := newTestServer(t, newMockStore(), nil)

	rec := srv.do(t, http.MethodPost, "/api/auth/signup", `{"name":"Ada","email":"Ada@Example.com","password":"hunter2"}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "hunter2") || strings.Contains(strings.ToLower(rec.Body.String()), "hash") {
		t.Fatalf("signup response leaks credentials: %s", rec.Body.String())
	}
	var resp accountResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Account.Email != "ada@example.com" || resp.Account.ID == "" {
		t.Fatalf("unexpected account: %#v", resp.Account)
	}
	cookie := sessionFrom(rec)
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected httpOnly session cookie, got %#v", cookie)
	}
	if sub, err := srv.sessions.SubjectFromToken(cookie.Value); err != nil || sub != resp.Account.ID {
		t.Fatalf("session cookie does not verify: sub=%q err=%v", sub, err)
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/signup", `{"name":"Ada","email":"ada@example.com","password":"other"}`, false)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/signin", `{"email":"ada@example.com","password":"hunter2"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if c := sessionFrom(rec); c == nil || c.Value == "" {
		t.Fatal("signin must set a session cookie")
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/signin", `{"email":"ada@example.com","password":"wrong"}`, false)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec) != msgInvalidCredentials {
		t.Fatalf("bad password: expected 401, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodPost, "/api/auth/signin", `{"email":"nobody@example.com","password":"hunter2"}`, false)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec) != msgInvalidCredentials {
		t.Fatalf("unknown account: expected 401, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/signout", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("signout: expected 200, got %d", rec.Code)
	}
	c := sessionFrom(rec)
	if c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Fatalf("signout must expire the cookie, got %#v", c)
	}
}

func TestSignUpValidation(t *testing.T) {
	srv := newTestServer(t, newMockStore(), nil)
	tests := map[string]string{
		`{"email":"","password":"x"}`:                   "email: Email is required",
		`{"email":"not-an-email","password":"x"}`:       "email: Invalid email address",
		`{"email":"a@example.com","password":""}`:       "password: Password is required",
		`{"email":"a@example.com","password":"` + strings.Repeat("x", 80) + `"}`: "password: Password is too long",
	}
	for body, want := range tests {
		rec := srv.do(t, http.MethodPost, "/api/auth/signup", body, false)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if got := decodeError(t, rec); got != want {
			t.Fatalf("%s: expected %q, got %q", body, want, got)
		}
	}
}

func TestSessionCookieSecureInProduction(t *testing.T) {
	srv := newTestServer(t, newMockStore(), func(d *Deps) { d.SecureCookies = true })
	rec := srv.do(t, http.MethodPost, "/api/auth/signup", `{"email":"b@example.com","password":"pw"}`, false)
	c := sessionFrom(rec)
	if c == nil || !c.Secure {
		t.Fatalf("expected Secure session cookie, got %#v", c)
	}
	if time.Until(c.Expires) <= 0 {
		t.Fatalf("expected a future expiry, got %v", c.Expires)
	}
}

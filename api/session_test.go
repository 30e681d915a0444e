package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/daveduya011/wph-task-manager/domain"
)

func TestSessionsIssueThenVerify(t *testing.T) {
	s := testSessions()
	token, exp, err := s.Issue(domain.Account{ID: "acct-7", Email: "x@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}
	sub, err := s.SubjectFromToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "acct-7" {
		t.Fatalf("expected subject acct-7, got %q", sub)
	}
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestSessionsRejectInvalidTokens(t *testing.T) {
	s := testSessions()
	now := time.Now()

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "exp": now.Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": signHS256(t, "other", jwt.MapClaims{"sub": "x", "exp": now.Add(time.Hour).Unix()}),
		"expired":      signHS256(t, testSecret, jwt.MapClaims{"sub": "x", "exp": now.Add(-time.Hour).Unix()}),
		"no expiry":    signHS256(t, testSecret, jwt.MapClaims{"sub": "x"}),
		"no subject":   signHS256(t, testSecret, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}),
		"alg none":     none,
	}
	for name, token := range tests {
		if _, err := s.SubjectFromToken(token); err == nil {
			t.Errorf("%s: expected token to be rejected", name)
		}
	}
}

func TestNewSessionsPanicsWithoutSecret(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty secret")
		}
	}()
	NewSessions(nil, time.Hour, nil)
}

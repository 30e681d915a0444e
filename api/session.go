package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/daveduya011/wph-task-manager/domain"
)

// SessionCookie carries the signed session token.
const SessionCookie = "session_token"

const defaultJWKSCacheTTL = 15 * time.Minute

var (
	errMissingSession = errors.New("missing session")
	errBadSession     = errors.New("bad session token")
)

// Authenticator resolves a session token to the account id it was issued for.
type Authenticator interface {
	SubjectFromToken(token string) (string, error)
}

// Sessions issues HS256 session tokens and validates them. When a JWKS is
// configured, RS256 tokens issued by an external identity provider are
// accepted as well.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	jwks   *keyfunc.JWKS

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewSessions creates a session manager. jwks may be nil.
func NewSessions(secret []byte, ttl time.Duration, jwks *keyfunc.JWKS) *Sessions {
	if len(secret) == 0 {
		panic("api.NewSessions: empty secret")
	}
	methods := []string{"HS256"}
	if jwks != nil {
		methods = append(methods, "RS256")
	}
	return &Sessions{
		secret:      secret,
		ttl:         ttl,
		jwks:        jwks,
		parser:      jwt.NewParser(jwt.WithValidMethods(methods)),
		keyCacheTTL: defaultJWKSCacheTTL,
	}
}

// Issue signs a session token for acct and returns it with its expiry.
func (s *Sessions) Issue(acct domain.Account) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":   acct.ID,
		"email": acct.Email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// SubjectFromToken validates token and returns its subject.
func (s *Sessions) SubjectFromToken(token string) (string, error) {
	if token == "" {
		return "", errMissingSession
	}
	parsed, err := s.parser.Parse(token, s.keyForToken)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errors.New("token used before issued")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (s *Sessions) keyForToken(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return s.secret, nil
	case *jwt.SigningMethodRSA:
		return s.jwksKey(t)
	}
	return nil, errors.New("invalid signing method")
}

func (s *Sessions) jwksKey(token *jwt.Token) (any, error) {
	if s.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && s.keyCacheTTL > 0 {
		if cached, ok := s.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			s.keyCache.Delete(kid)
		}
	}

	key, err := s.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && s.keyCacheTTL > 0 {
		s.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(s.keyCacheTTL)})
	}
	return key, nil
}

// sessionFromRequest validates the session cookie of c.
func sessionFromRequest(c echo.Context, auth Authenticator) (string, error) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", errMissingSession
	}
	sub, err := auth.SubjectFromToken(cookie.Value)
	if err != nil {
		return "", errors.Join(errBadSession, err)
	}
	return sub, nil
}

func setSessionCookie(c echo.Context, token string, expires time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

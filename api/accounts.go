package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/daveduya011/wph-task-manager/domain"
	"github.com/daveduya011/wph-task-manager/storage"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgAccountExists      = "Account already exists"
	msgSignUpFailed       = "Failed to create account"
	msgSignInFailed       = "Failed to sign in"
	msgSignedOut          = "Signed out"
)

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

type accountResponse struct {
	Account domain.Account `json:"account"`
}

func validationFailure(c echo.Context, metrics *requestMetrics, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		metrics.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorBody{Error: ve.Error()})
	}
	return err
}

func startSession(c echo.Context, sessions *Sessions, acct domain.Account, secure bool) error {
	token, exp, err := sessions.Issue(acct)
	if err != nil {
		return err
	}
	setSessionCookie(c, token, exp, secure)
	return nil
}

func signUp(accounts storage.AccountStore, sessions *Sessions, secure bool, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/api/auth/signup", func(c echo.Context, metrics *requestMetrics) error {
		var creds domain.Credentials
		if err := decodeBody(c, &creds); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Error: msgInvalidBody})
		}
		creds, err := creds.Normalize()
		if err != nil {
			return validationFailure(c, metrics, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcryptCost)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			metrics.SetErrorStage("validation")
			verr := &domain.ValidationError{Field: "password", Reason: "Password is too long"}
			return c.JSON(http.StatusBadRequest, errorBody{Error: verr.Error()})
		}
		if err != nil {
			metrics.SetErrorStage("hash")
			logger.WithError(err).Error(msgSignUpFailed)
			return c.JSON(http.StatusInternalServerError, errorBody{Error: msgSignUpFailed})
		}

		start := time.Now()
		acct, err := accounts.CreateAccount(c.Request().Context(), creds.Email, creds.Name, hash)
		metrics.ObserveStore(time.Since(start))
		if errors.Is(err, domain.ErrConflict) {
			metrics.SetErrorStage("conflict")
			return c.JSON(http.StatusConflict, errorBody{Error: msgAccountExists})
		}
		if err != nil {
			metrics.SetErrorStage("storage")
			logger.WithError(err).Error(msgSignUpFailed)
			return c.JSON(http.StatusInternalServerError, errorBody{Error: msgSignUpFailed})
		}
		if err := startSession(c, sessions, acct, secure); err != nil {
			metrics.SetErrorStage("session")
			logger.WithError(err).Error("issue session")
			return c.JSON(http.StatusInternalServerError, errorBody{Error: msgSignUpFailed})
		}
		logger.WithField("account", acct.ID).Info("account created")
		return c.JSON(http.StatusCreated, accountResponse{Account: acct})
	})
}

func signIn(accounts storage.AccountStore, sessions *Sessions, secure bool, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/api/auth/signin", func(c echo.Context, metrics *requestMetrics) error {
		var creds domain.Credentials
		if err := decodeBody(c, &creds); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Error: msgInvalidBody})
		}
		creds, err := creds.Normalize()
		if err != nil {
			return validationFailure(c, metrics, err)
		}

		start := time.Now()
		acct, err := accounts.AccountByEmail(c.Request().Context(), creds.Email)
		metrics.ObserveStore(time.Since(start))
		if errors.Is(err, domain.ErrNotFound) {
			metrics.SetErrorStage("auth")
			return c.JSON(http.StatusUnauthorized, errorBody{Error: msgInvalidCredentials})
		}
		if err != nil {
			metrics.SetErrorStage("storage")
			logger.WithError(err).Error(msgSignInFailed)
			return c.JSON(http.StatusInternalServerError, errorBody{Error: msgSignInFailed})
		}
		if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(creds.Password)); err != nil {
			metrics.SetErrorStage("auth")
			return c.JSON(http.StatusUnauthorized, errorBody{Error: msgInvalidCredentials})
		}
		if err := startSession(c, sessions, acct, secure); err != nil {
			metrics.SetErrorStage("session")
			logger.WithError(err).Error("issue session")
			return c.JSON(http.StatusInternalServerError, errorBody{Error: msgSignInFailed})
		}
		return c.JSON(http.StatusOK, accountResponse{Account: acct})
	})
}

func signOut(secure bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		clearSessionCookie(c, secure)
		return c.JSON(http.StatusOK, messageBody{Message: msgSignedOut})
	}
}

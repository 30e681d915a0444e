package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/daveduya011/wph-task-manager/domain"
)

// LayoutCookie remembers the board presentation per client.
const LayoutCookie = "layout"

const layoutMaxAge = 30 * 24 * 60 * 60

type layoutBody struct {
	Layout domain.Layout `json:"layout"`
}

func layoutFromRequest(c echo.Context) domain.Layout {
	cookie, err := c.Cookie(LayoutCookie)
	if err != nil {
		return domain.LayoutKanban
	}
	return domain.ParseLayout(cookie.Value)
}

func getLayout(auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/api/layout", func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return unauthorized(c)
		}
		return c.JSON(http.StatusOK, layoutBody{Layout: layoutFromRequest(c)})
	})
}

func putLayout(auth Authenticator, secure bool, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/api/layout", func(c echo.Context, metrics *requestMetrics) error {
		if _, err := authenticate(c, auth, metrics); err != nil {
			return unauthorized(c)
		}
		var body layoutBody
		if err := decodeBody(c, &body); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Error: msgInvalidBody})
		}
		if !body.Layout.Valid() {
			metrics.SetErrorStage("validation")
			verr := &domain.ValidationError{Field: "layout", Reason: "unknown layout \"" + string(body.Layout) + "\""}
			return c.JSON(http.StatusBadRequest, errorBody{Error: verr.Error()})
		}
		c.SetCookie(&http.Cookie{
			Name:     LayoutCookie,
			Value:    string(body.Layout),
			Path:     "/",
			MaxAge:   layoutMaxAge,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
		return c.JSON(http.StatusOK, body)
	})
}

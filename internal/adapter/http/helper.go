package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/domain/fault"
)

// ---- helpers ----

// Identity comes from the gateway in front of this service; the X-User-ID
// header is trusted as already authenticated.
const userIDHeader = "X-User-ID"

func actorID(c echo.Context) (uint64, error) {
	raw := c.Request().Header.Get(userIDHeader)
	if raw == "" {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing "+userIDHeader+" header")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "invalid "+userIDHeader+" header")
	}
	return id, nil
}

func paramID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" path param")
	}
	return id, nil
}

// statusFor maps the fault taxonomy onto HTTP codes. Non-fault errors are
// opaque internal failures.
func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.Authorization:
		return http.StatusForbidden
	case fault.InvalidState:
		return http.StatusConflict
	case fault.NotFound:
		return http.StatusNotFound
	case fault.ExternalNetwork:
		return http.StatusBadGateway
	case fault.Consistency:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func writeErr(c echo.Context, err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return c.JSON(he.Code, ErrorResponse{Error: strings.TrimSpace(toMsg(he.Message))})
	}
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && fault.KindOf(err) == 0 {
		msg = "internal error"
	}
	return c.JSON(status, ErrorResponse{Error: msg})
}

func toMsg(m any) string {
	if s, ok := m.(string); ok {
		return s
	}
	return "request failed"
}

package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/usecase/trust"
)

type TrustHandler struct{ uc *trust.Usecase }

func NewTrustHandler(uc *trust.Usecase) *TrustHandler { return &TrustHandler{uc: uc} }

func windowDays(c echo.Context) int {
	if raw := c.QueryParam("window_days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 0 // usecase falls back to its default window
}

func (h *TrustHandler) GetScore(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	userID, err := paramID(c, "user_id")
	if err != nil {
		return writeErr(c, err)
	}
	view, err := h.uc.ComputeScore(c.Request().Context(), c.Param("slug"), userID, actor, windowDays(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *TrustHandler) Recompute(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	userID, err := paramID(c, "user_id")
	if err != nil {
		return writeErr(c, err)
	}
	view, err := h.uc.UpdateTrustScore(c.Request().Context(), c.Param("slug"), userID, actor, windowDays(c))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *TrustHandler) History(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	userID, err := paramID(c, "user_id")
	if err != nil {
		return writeErr(c, err)
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.uc.History(c.Request().Context(), c.Param("slug"), userID, actor, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"history": entries})
}

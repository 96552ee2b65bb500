package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/usecase/reconcile"
)

type ReconcileHandler struct{ uc *reconcile.Usecase }

func NewReconcileHandler(uc *reconcile.Usecase) *ReconcileHandler { return &ReconcileHandler{uc: uc} }

func (h *ReconcileHandler) ReconcileVault(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	report, err := h.uc.ReconcileVault(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *ReconcileHandler) GetTransferTrail(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	transferID, err := paramID(c, "transfer_id")
	if err != nil {
		return writeErr(c, err)
	}
	trail, err := h.uc.GetTransferTrail(c.Request().Context(), transferID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, trail)
}

// Sweep is a system endpoint: it retries every eligible pending transfer
// across all groups. The scheduler calls the usecase directly; this route
// exists so an operator can force a pass.
func (h *ReconcileHandler) Sweep(c echo.Context) error {
	report, err := h.uc.Sweep(c.Request().Context())
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/usecase/profit"
)

type ProfitHandler struct{ uc *profit.Usecase }

func NewProfitHandler(uc *profit.Usecase) *ProfitHandler { return &ProfitHandler{uc: uc} }

func (h *ProfitHandler) GetPool(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	groupID, err := paramID(c, "group_id")
	if err != nil {
		return writeErr(c, err)
	}
	pool, err := h.uc.GetPool(c.Request().Context(), groupID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, pool)
}

func (h *ProfitHandler) ListDistributions(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	groupID, err := paramID(c, "group_id")
	if err != nil {
		return writeErr(c, err)
	}
	dists, err := h.uc.ListDistributions(c.Request().Context(), groupID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"distributions": dists})
}

// Distribute is a system endpoint: the scheduler (or an operator) triggers a
// distribution pass directly, membership checks do not apply.
func (h *ProfitHandler) Distribute(c echo.Context) error {
	groupID, err := paramID(c, "group_id")
	if err != nil {
		return writeErr(c, err)
	}
	force, _ := strconv.ParseBool(c.QueryParam("force"))
	res, err := h.uc.Distribute(c.Request().Context(), groupID, force)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

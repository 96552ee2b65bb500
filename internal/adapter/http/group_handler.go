package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/usecase/membership"
)

type GroupHandler struct{ uc *membership.Usecase }

func NewGroupHandler(uc *membership.Usecase) *GroupHandler { return &GroupHandler{uc: uc} }

func (h *GroupHandler) CreateGroup(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	var req membership.CreateGroupInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	g, err := h.uc.CreateGroup(c.Request().Context(), actor, req)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *GroupHandler) JoinGroup(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	res, err := h.uc.JoinGroup(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	if res.AlreadyMember {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusCreated, res)
}

type amountReq struct {
	Amount float64 `json:"amount" validate:"required,gt=0,dec2"`
}

func (h *GroupHandler) Deposit(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	var req amountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	res, err := h.uc.Deposit(c.Request().Context(), c.Param("slug"), actor, req.Amount)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *GroupHandler) Withdraw(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	var req amountReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	res, err := h.uc.Withdraw(c.Request().Context(), c.Param("slug"), actor, req.Amount)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *GroupHandler) GetGroup(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	view, err := h.uc.GetGroup(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *GroupHandler) GetBalance(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	view, err := h.uc.GetBalance(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *GroupHandler) ListLedger(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	var userFilter *uint64
	if raw := c.QueryParam("user_id"); raw != "" {
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user_id query param"})
		}
		userFilter = &id
	}
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.uc.ListLedger(c.Request().Context(), c.Param("slug"), actor, userFilter, limit)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

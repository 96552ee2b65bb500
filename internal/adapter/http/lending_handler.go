package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/usecase/lending"
)

type LendingHandler struct{ uc *lending.Usecase }

func NewLendingHandler(uc *lending.Usecase) *LendingHandler { return &LendingHandler{uc: uc} }

func (h *LendingHandler) SubmitRequest(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	var req lending.SubmitRequestInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	view, err := h.uc.SubmitLoanRequest(c.Request().Context(), c.Param("slug"), actor, req)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *LendingHandler) GetRequest(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	requestID, err := paramID(c, "request_id")
	if err != nil {
		return writeErr(c, err)
	}
	view, err := h.uc.GetRequest(c.Request().Context(), requestID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

type castVoteReq struct {
	Choice string `json:"choice" validate:"required,oneof=yes no"`
}

func (h *LendingHandler) CastVote(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	requestID, err := paramID(c, "request_id")
	if err != nil {
		return writeErr(c, err)
	}
	var req castVoteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	res, err := h.uc.CastVote(c.Request().Context(), requestID, actor, loan.Choice(req.Choice))
	if err != nil {
		return writeErr(c, err)
	}
	if res.AlreadyVoted {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *LendingHandler) Disburse(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	requestID, err := paramID(c, "request_id")
	if err != nil {
		return writeErr(c, err)
	}
	res, err := h.uc.Disburse(c.Request().Context(), requestID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	if res.AlreadyActive {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *LendingHandler) GetLoan(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	loanID, err := paramID(c, "loan_id")
	if err != nil {
		return writeErr(c, err)
	}
	view, err := h.uc.GetLoan(c.Request().Context(), loanID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *LendingHandler) Schedule(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	loanID, err := paramID(c, "loan_id")
	if err != nil {
		return writeErr(c, err)
	}
	entries, err := h.uc.Schedule(c.Request().Context(), loanID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"schedule": entries})
}

func (h *LendingHandler) RecordRepayment(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	loanID, err := paramID(c, "loan_id")
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
	res, err := h.uc.RecordRepayment(c.Request().Context(), loanID, actor, req.Amount)
	if err != nil {
		return writeErr(c, err)
	}
	if res.PendingApproval {
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *LendingHandler) ListLoans(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	loans, err := h.uc.ListLoans(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loans": loans})
}

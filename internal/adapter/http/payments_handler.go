package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/usecase/lending"
)

// PaymentsHandler covers the admin review flow for suspect repayments and
// parked credit.
type PaymentsHandler struct{ uc *lending.Usecase }

func NewPaymentsHandler(uc *lending.Usecase) *PaymentsHandler { return &PaymentsHandler{uc: uc} }

type approvePaymentReq struct {
	ApplyAmount *float64 `json:"apply_amount,omitempty" validate:"omitempty,gt=0,dec2"`
}

func (h *PaymentsHandler) Approve(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	repaymentID, err := paramID(c, "repayment_id")
	if err != nil {
		return writeErr(c, err)
	}
	var req approvePaymentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	res, err := h.uc.AdminApprovePayment(c.Request().Context(), repaymentID, actor, req.ApplyAmount)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PaymentsHandler) Reject(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	repaymentID, err := paramID(c, "repayment_id")
	if err != nil {
		return writeErr(c, err)
	}
	res, err := h.uc.AdminRejectPayment(c.Request().Context(), repaymentID, actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PaymentsHandler) ListSuspect(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	audits, err := h.uc.ListSuspectPayments(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"suspect_payments": audits})
}

func (h *PaymentsHandler) ListCredits(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	credits, err := h.uc.ListCredits(c.Request().Context(), c.Param("slug"), actor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"credits": credits})
}

type applyCreditReq struct {
	LoanID uint64  `json:"loan_id" validate:"required"`
	Amount float64 `json:"amount" validate:"required,gt=0,dec2"`
}

func (h *PaymentsHandler) ApplyCredit(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return writeErr(c, err)
	}
	creditID, err := paramID(c, "credit_id")
	if err != nil {
		return writeErr(c, err)
	}
	var req applyCreditReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	res, err := h.uc.AdminApplyCredit(c.Request().Context(), creditID, actor, req.LoanID, req.Amount)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/delivery"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/wallet"
)

const defaultTransactionLimit = 50

type handler struct {
	uc wallet.UseCase
}

func New(e *echo.Echo, uc wallet.UseCase) {
	h := &handler{uc}
	g := e.Group("/wallets")
	g.POST("", h.createWallet)
	g.GET("/:userId", h.getWallet)
	g.GET("/:userId/transactions", h.getTransactions)
	g.POST("/:userId/hold", h.holdFunds)
	g.POST("/:userId/release", h.releaseFunds)
	g.POST("/:userId/withdraw", h.withdraw)
}

func (h *handler) createWallet(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		UserId         domain.UserId `json:"userId" validate:"required"`
		InitialBalance domain.Amount `json:"initialBalance"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	w, err := h.uc.Create(ctx, p.UserId, p.InitialBalance)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, w)
}

func (h *handler) getWallet(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)
	w, err := h.uc.Get(ctx, domain.UserId(c.Param("userId")))
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, w)
}

func (h *handler) getTransactions(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	limit := defaultTransactionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return delivery.MakeJsonResp(c, http.StatusBadRequest, domain.ErrBadParamInput)
		}
		limit = parsed
	}

	txs, err := h.uc.Transactions(ctx, domain.UserId(c.Param("userId")), limit)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, txs)
}

type fundsPayload struct {
	Amount        domain.Amount `json:"amount" validate:"required"`
	ReferenceId   string        `json:"referenceId" validate:"required"`
	ReferenceType string        `json:"referenceType" validate:"required"`
}

func (h *handler) holdFunds(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	p := &fundsPayload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	err := h.uc.HoldFunds(ctx, &wallet.HoldFunds{
		UserId:        domain.UserId(c.Param("userId")),
		Amount:        p.Amount,
		ReferenceId:   p.ReferenceId,
		ReferenceType: p.ReferenceType,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, nil)
}

func (h *handler) releaseFunds(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	p := &fundsPayload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	err := h.uc.ReleaseFunds(ctx, &wallet.ReleaseFunds{
		UserId:        domain.UserId(c.Param("userId")),
		Amount:        p.Amount,
		ReferenceId:   p.ReferenceId,
		ReferenceType: p.ReferenceType,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, nil)
}

func (h *handler) withdraw(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		Amount domain.Amount `json:"amount" validate:"required"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	err := h.uc.Withdraw(ctx, &wallet.Withdraw{
		UserId: domain.UserId(c.Param("userId")),
		Amount: p.Amount,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, nil)
}

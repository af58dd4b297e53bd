package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/delivery"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/bid"
)

type handler struct {
	engine bid.Engine
}

func New(e *echo.Echo, engine bid.Engine) {
	h := &handler{engine}

	e.POST("/auctions/:auctionId/bids", h.placeBid)
	e.POST("/auctions/:auctionId/autobids", h.createAutoBid)
	e.DELETE("/bids/:bidId", h.retractBid)
	e.PUT("/autobids/:autoBidId", h.updateAutoBid)
	e.DELETE("/autobids/:autoBidId", h.cancelAutoBid)
}

func (h *handler) placeBid(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		Bidder         domain.UserId `json:"bidder" validate:"required"`
		BidderName     string        `json:"bidderName"`
		Amount         domain.Amount `json:"amount" validate:"required"`
		IdempotencyKey string        `json:"idempotencyKey"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	b, err := h.engine.PlaceBid(ctx, &bid.PlaceBid{
		AuctionId:      domain.AuctionId(c.Param("auctionId")),
		Bidder:         p.Bidder,
		BidderName:     p.BidderName,
		Amount:         p.Amount,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, b)
}

func (h *handler) retractBid(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		UserId domain.UserId `json:"userId" validate:"required"`
		Reason string        `json:"reason"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	err := h.engine.RetractBid(ctx, &bid.RetractBid{
		BidId:  c.Param("bidId"),
		UserId: p.UserId,
		Reason: p.Reason,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, nil)
}

func (h *handler) createAutoBid(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		User      domain.UserId `json:"user" validate:"required"`
		UserName  string        `json:"userName"`
		MaxAmount domain.Amount `json:"maxAmount" validate:"required"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	ab, err := h.engine.CreateAutoBid(ctx, &bid.CreateAutoBid{
		AuctionId: domain.AuctionId(c.Param("auctionId")),
		User:      p.User,
		UserName:  p.UserName,
		MaxAmount: p.MaxAmount,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, ab)
}

func (h *handler) updateAutoBid(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		User      domain.UserId `json:"user" validate:"required"`
		MaxAmount domain.Amount `json:"maxAmount" validate:"required"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	ab, err := h.engine.UpdateAutoBid(ctx, &bid.UpdateAutoBid{
		AutoBidId: c.Param("autoBidId"),
		User:      p.User,
		MaxAmount: p.MaxAmount,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, ab)
}

func (h *handler) cancelAutoBid(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		User domain.UserId `json:"user" validate:"required"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	err := h.engine.CancelAutoBid(ctx, &bid.CancelAutoBid{
		AutoBidId: c.Param("autoBidId"),
		User:      p.User,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, nil)
}

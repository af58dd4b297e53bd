package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/delivery"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
)

type handler struct {
	co buynow.Coordinator
}

func New(e *echo.Echo, co buynow.Coordinator) {
	h := &handler{co}
	e.POST("/auctions/:auctionId/buynow", h.buyNow)
}

// buyNow answers as soon as the saga is started; settlement finishes
// asynchronously and the caller tracks it by correlation id.
func (h *handler) buyNow(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		Buyer     domain.UserId `json:"buyer" validate:"required"`
		BuyerName string        `json:"buyerName"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	res, err := h.co.Execute(ctx, domain.AuctionId(c.Param("auctionId")), p.Buyer, p.BuyerName)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusAccepted, res)
}

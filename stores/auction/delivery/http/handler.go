package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/delivery"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/middleware"
)

// auction reads tolerate slightly stale data, writes land through the bid
// and buy-now paths anyway
const getAuctionCacheTTL = 2 * time.Second

type handler struct {
	uc auction.UseCase
}

func New(e *echo.Echo, uc auction.UseCase) {
	h := &handler{uc}
	g := e.Group("/auctions")
	g.GET("/:auctionId", h.getAuction, middleware.CacheHttp(getAuctionCacheTTL))
	g.POST("", h.createAuction)
}

func (h *handler) getAuction(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)
	id := domain.AuctionId(c.Param("auctionId"))
	a, err := h.uc.Get(ctx, id)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, a)
}

func (h *handler) createAuction(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		Seller       domain.UserId  `json:"seller" validate:"required"`
		SellerName   string         `json:"sellerName"`
		ItemTitle    string         `json:"itemTitle" validate:"required"`
		ReservePrice domain.Amount  `json:"reservePrice"`
		BuyNowPrice  *domain.Amount `json:"buyNowPrice"`
		EndTime      time.Time      `json:"endTime" validate:"required"`
	}

	p := &payload{}
	if err := c.Bind(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	a := &auction.Auction{
		Seller:       p.Seller,
		SellerName:   p.SellerName,
		ItemTitle:    p.ItemTitle,
		ReservePrice: p.ReservePrice,
		BuyNowPrice:  p.BuyNowPrice,
		EndTime:      p.EndTime,
	}
	if err := h.uc.Create(ctx, a); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, a)
}

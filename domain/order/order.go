package order

import (
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
)

type Status = string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	Id            string               `json:"id" bson:"id"`
	CorrelationId domain.CorrelationId `json:"correlationId" bson:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId" bson:"auctionId"`
	Buyer         domain.UserId        `json:"buyer" bson:"buyer"`
	BuyerName     string               `json:"buyerName" bson:"buyerName"`
	Seller        domain.UserId        `json:"seller" bson:"seller"`
	SellerName    string               `json:"sellerName" bson:"sellerName"`
	Price         domain.Amount        `json:"price" bson:"price"`
	ItemTitle     string               `json:"itemTitle" bson:"itemTitle"`
	Status        Status               `json:"status" bson:"status"`
	CreatedAt     time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt" bson:"updatedAt"`
}

type Repo interface {
	// Insert returns domain.ErrAlreadyExists when another order was
	// created for the same correlation id.
	Insert(c ctx.Ctx, o *Order) error
	FindOne(c ctx.Ctx, id string) (*Order, error)
	FindByCorrelation(c ctx.Ctx, correlationId domain.CorrelationId) (*Order, error)
	UpdateStatus(c ctx.Ctx, correlationId domain.CorrelationId, status Status) error
}

type UseCase interface {
	Get(c ctx.Ctx, id string) (*Order, error)
	CreateBuyNow(c ctx.Ctx, cmd *buynow.CreateBuyNowOrder) error
	MarkCompleted(c ctx.Ctx, correlationId domain.CorrelationId) error
	MarkCancelled(c ctx.Ctx, correlationId domain.CorrelationId) error
}

package buynow

import (
	"time"

	"github.com/bidhaus/goapi/domain"
)

// Bus topics, one message type per topic. Commands flow coordinator to
// participant; the rest are outcome events flowing back.
const (
	TopicSagaStarted         = "buynow.saga-started"
	TopicReserveAuction      = "buynow.reserve-auction"
	TopicAuctionReserved     = "buynow.auction-reserved"
	TopicReservationFailed   = "buynow.reservation-failed"
	TopicCreateOrder         = "buynow.create-order"
	TopicOrderCreated        = "buynow.order-created"
	TopicOrderCreationFailed = "buynow.order-creation-failed"
	TopicCompleteAuction     = "buynow.complete-auction"
	TopicAuctionCompleted    = "buynow.auction-completed"
	TopicReleaseReservation  = "buynow.release-reservation"
	TopicReservationReleased = "buynow.reservation-released"
	TopicSagaCompleted       = "buynow.saga-completed"
	TopicSagaTimedOut        = "buynow.saga-timed-out"
)

// FailureReason distinguishes "already purchased" from transient failures in
// reservation outcomes
type FailureReason string

const (
	ReasonPurchased FailureReason = "purchased"
	ReasonInvalid   FailureReason = "invalid"
	ReasonConflict  FailureReason = "conflict"
)

type BuyNowSagaStarted struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Buyer         domain.UserId        `json:"buyer"`
	BuyerName     string               `json:"buyerName"`
	Seller        domain.UserId        `json:"seller"`
	SellerName    string               `json:"sellerName"`
	Price         domain.Amount        `json:"price"`
	ItemTitle     string               `json:"itemTitle"`
	StartedAt     time.Time            `json:"startedAt"`
}

type ReserveAuctionForBuyNow struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Buyer         domain.UserId        `json:"buyer"`
}

type AuctionReservedForBuyNow struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	ReservedAt    time.Time            `json:"reservedAt"`
}

type AuctionReservationFailed struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Reason        FailureReason        `json:"reason"`
}

type CreateBuyNowOrder struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Buyer         domain.UserId        `json:"buyer"`
	BuyerName     string               `json:"buyerName"`
	Seller        domain.UserId        `json:"seller"`
	SellerName    string               `json:"sellerName"`
	Price         domain.Amount        `json:"price"`
	ItemTitle     string               `json:"itemTitle"`
}

type BuyNowOrderCreated struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	OrderId       string               `json:"orderId"`
	CreatedAt     time.Time            `json:"createdAt"`
}

type BuyNowOrderCreationFailed struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Reason        string               `json:"reason"`
}

type CompleteBuyNowAuction struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Winner        domain.UserId        `json:"winner"`
	WinnerName    string               `json:"winnerName"`
	Price         domain.Amount        `json:"price"`
}

type BuyNowAuctionCompleted struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	CompletedAt   time.Time            `json:"completedAt"`
}

type ReleaseAuctionReservation struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
}

type AuctionReservationReleased struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
}

type BuyNowSagaCompleted struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Buyer         domain.UserId        `json:"buyer"`
	Seller        domain.UserId        `json:"seller"`
	Price         domain.Amount        `json:"price"`
	ItemTitle     string               `json:"itemTitle"`
	CompletedAt   time.Time            `json:"completedAt"`
}

type BuyNowSagaTimedOut struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Buyer         domain.UserId        `json:"buyer"`
	TimedOutAt    time.Time            `json:"timedOutAt"`
}

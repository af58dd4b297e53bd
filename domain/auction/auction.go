package auction

import (
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
)

// Status is the auction lifecycle state. Activation/deactivation between
// Inactive, Scheduled and Live is driven by external jobs; the core only
// moves Live auctions forward.
type Status string

const (
	StatusInactive      Status = "inactive"
	StatusScheduled     Status = "scheduled"
	StatusLive          Status = "live"
	StatusFinished      Status = "finished"
	StatusReserveNotMet Status = "reserveNotMet"
)

// Auction is the auction aggregate owned by the auction service.
// Version guards optimistic concurrency on every update; once Status is
// Finished the highest bid and winner are immutable.
type Auction struct {
	Id            domain.AuctionId     `json:"auctionId" bson:"auctionId"`
	Seller        domain.UserId        `json:"seller" bson:"seller"`
	SellerName    string               `json:"sellerName" bson:"sellerName"`
	ItemTitle     string               `json:"itemTitle" bson:"itemTitle"`
	Status        Status               `json:"status" bson:"status"`
	ReservePrice  domain.Amount        `json:"reservePrice" bson:"reservePrice"`
	BuyNowPrice   *domain.Amount       `json:"buyNowPrice,omitempty" bson:"buyNowPrice,omitempty"`
	HighestBid    domain.Amount        `json:"highestBid" bson:"highestBid"`
	HighestBidder domain.UserId        `json:"highestBidder" bson:"highestBidder"`
	Winner        domain.UserId        `json:"winner" bson:"winner"`
	WinnerName    string               `json:"winnerName" bson:"winnerName"`
	EndTime       time.Time            `json:"endTime" bson:"endTime"`
	ReservedBy    domain.CorrelationId `json:"reservedBy,omitempty" bson:"reservedBy,omitempty"`
	ReservedAt    *time.Time           `json:"reservedAt,omitempty" bson:"reservedAt,omitempty"`
	Version       int64                `json:"version" bson:"version"`
	CreatedAt     time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// IsBuyNowAvailable is the derived flag: a live, unreserved auction with a
// buy-now price can be bought outright.
func (a *Auction) IsBuyNowAvailable() bool {
	return a.Status == StatusLive && a.BuyNowPrice != nil && a.ReservedBy == ""
}

// IsEnded reports whether the auction end timestamp has passed
func (a *Auction) IsEnded(now time.Time) bool {
	return !a.EndTime.IsZero() && now.After(a.EndTime)
}

// Repo is the auction repository. Update replaces the stored document only if
// the persisted version still matches a.Version; a lost race surfaces as
// domain.ErrConcurrencyConflict.
type Repo interface {
	FindOne(c ctx.Ctx, id domain.AuctionId) (*Auction, error)
	Insert(c ctx.Ctx, a *Auction) error
	Update(c ctx.Ctx, a *Auction) error
}

// UseCase is the auction-service behavior consumed by the HTTP surface and
// the buy-now saga participant handlers.
type UseCase interface {
	Get(c ctx.Ctx, id domain.AuctionId) (*Auction, error)
	Create(c ctx.Ctx, a *Auction) error

	// SetHighestBid updates the running highest bid fields; used by the bid
	// engine which already holds the auction bid lock.
	SetHighestBid(c ctx.Ctx, a *Auction, amount domain.Amount, bidder domain.UserId) error

	// saga participant handlers, reached through the bus
	ReserveForBuyNow(c ctx.Ctx, msg *buynow.ReserveAuctionForBuyNow) error
	CompleteBuyNow(c ctx.Ctx, msg *buynow.CompleteBuyNowAuction) error
	ReleaseReservation(c ctx.Ctx, msg *buynow.ReleaseAuctionReservation) error
}

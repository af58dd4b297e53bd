package bid

import (
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
)

type Status = string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// DefaultRetractionWindow is how long after placement a bid may still be
// retracted by its owner.
const DefaultRetractionWindow = 5 * time.Minute

type Bid struct {
	Id             string           `json:"id" bson:"id"`
	AuctionId      domain.AuctionId `json:"auctionId" bson:"auctionId"`
	Bidder         domain.UserId    `json:"bidder" bson:"bidder"`
	BidderName     string           `json:"bidderName" bson:"bidderName"`
	Amount         domain.Amount    `json:"amount" bson:"amount"`
	Status         Status           `json:"status" bson:"status"`
	RejectReason   string           `json:"rejectReason,omitempty" bson:"rejectReason,omitempty"`
	IsAutoBid      bool             `json:"isAutoBid" bson:"isAutoBid"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty" bson:"idempotencyKey,omitempty"`
	PlacedAt       time.Time        `json:"placedAt" bson:"placedAt"`
}

type AutoBid struct {
	Id               string           `json:"id" bson:"id"`
	AuctionId        domain.AuctionId `json:"auctionId" bson:"auctionId"`
	User             domain.UserId    `json:"user" bson:"user"`
	UserName         string           `json:"userName" bson:"userName"`
	MaxAmount        domain.Amount    `json:"maxAmount" bson:"maxAmount"`
	CurrentBidAmount domain.Amount    `json:"currentBidAmount" bson:"currentBidAmount"`
	IsActive         bool             `json:"isActive" bson:"isActive"`
	CreatedAt        time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// IncrementTier maps a price floor to the minimum raise required at or
// above that floor.
type IncrementTier struct {
	From domain.Amount `json:"from" bson:"from"`
	Step domain.Amount `json:"step" bson:"step"`
}

var DefaultIncrementTiers = []IncrementTier{
	{From: domain.MustAmount("0"), Step: domain.MustAmount("1")},
	{From: domain.MustAmount("50"), Step: domain.MustAmount("5")},
	{From: domain.MustAmount("100"), Step: domain.MustAmount("10")},
	{From: domain.MustAmount("500"), Step: domain.MustAmount("25")},
	{From: domain.MustAmount("1000"), Step: domain.MustAmount("50")},
	{From: domain.MustAmount("5000"), Step: domain.MustAmount("100")},
}

// MinIncrement returns the raise step for the given current price. Tiers
// must be sorted ascending by From.
func MinIncrement(tiers []IncrementTier, price domain.Amount) domain.Amount {
	if len(tiers) == 0 {
		tiers = DefaultIncrementTiers
	}
	step := tiers[0].Step
	for _, t := range tiers {
		if price.GreaterThanOrEqual(t.From) {
			step = t.Step
		} else {
			break
		}
	}
	return step
}

type Repo interface {
	Insert(c ctx.Ctx, b *Bid) error
	FindOne(c ctx.Ctx, id string) (*Bid, error)
	FindAllAccepted(c ctx.Ctx, auctionId domain.AuctionId) ([]Bid, error)
	FindByIdempotencyKey(c ctx.Ctx, auctionId domain.AuctionId, key string) (*Bid, error)
	UpdateStatus(c ctx.Ctx, id string, status Status, reason string) error
}

type AutoBidRepo interface {
	Insert(c ctx.Ctx, a *AutoBid) error
	FindOne(c ctx.Ctx, id string) (*AutoBid, error)
	FindActiveByAuction(c ctx.Ctx, auctionId domain.AuctionId) ([]AutoBid, error)
	FindActiveByAuctionAndUser(c ctx.Ctx, auctionId domain.AuctionId, user domain.UserId) (*AutoBid, error)
	Update(c ctx.Ctx, a *AutoBid) error
}

type PlaceBid struct {
	AuctionId  domain.AuctionId `json:"auctionId"`
	Bidder     domain.UserId    `json:"bidder"`
	BidderName string           `json:"bidderName"`
	Amount     domain.Amount    `json:"amount"`

	// IdempotencyKey lets a retried submission collapse onto the bid the
	// first attempt recorded. Empty means no dedup.
	IdempotencyKey string `json:"idempotencyKey"`
}

type RetractBid struct {
	BidId  string        `json:"bidId"`
	UserId domain.UserId `json:"userId"`
	Reason string        `json:"reason"`
}

type CreateAutoBid struct {
	AuctionId domain.AuctionId `json:"auctionId"`
	User      domain.UserId    `json:"user"`
	UserName  string           `json:"userName"`
	MaxAmount domain.Amount    `json:"maxAmount"`
}

type UpdateAutoBid struct {
	AutoBidId string        `json:"autoBidId"`
	User      domain.UserId `json:"user"`
	MaxAmount domain.Amount `json:"maxAmount"`
}

type CancelAutoBid struct {
	AutoBidId string        `json:"autoBidId"`
	User      domain.UserId `json:"user"`
}

type Engine interface {
	PlaceBid(c ctx.Ctx, p *PlaceBid) (*Bid, error)
	RetractBid(c ctx.Ctx, p *RetractBid) error
	CreateAutoBid(c ctx.Ctx, p *CreateAutoBid) (*AutoBid, error)
	UpdateAutoBid(c ctx.Ctx, p *UpdateAutoBid) (*AutoBid, error)
	CancelAutoBid(c ctx.Ctx, p *CancelAutoBid) error
}

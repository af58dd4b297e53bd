package bid

import (
	"time"

	"github.com/bidhaus/goapi/domain"
)

const TopicHighestChanged = "bid.highest-changed"

type HighestChanged struct {
	AuctionId  domain.AuctionId `json:"auctionId"`
	BidId      string           `json:"bidId"`
	Bidder     domain.UserId    `json:"bidder"`
	BidderName string           `json:"bidderName"`
	Amount     domain.Amount    `json:"amount"`
	IsAutoBid  bool             `json:"isAutoBid"`
	ChangedAt  time.Time        `json:"changedAt"`
}

package buynow

import (
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
)

// Step is the saga coordinator state for one purchase attempt
type Step string

const (
	StepReservationPending Step = "reservationPending"
	StepOrderPending       Step = "orderPending"
	StepCompleting         Step = "completing"
	StepCompleted          Step = "completed"
	StepTimedOut           Step = "timedOut"
	StepFailed             Step = "failed"
)

// rank orders steps so duplicate or out-of-order events can be ignored when
// the saga already advanced past them
var rank = map[Step]int{
	StepReservationPending: 0,
	StepOrderPending:       1,
	StepCompleting:         2,
	StepCompleted:          3,
	StepTimedOut:           3,
	StepFailed:             3,
}

// Before reports whether s precedes other in the saga progression
func (s Step) Before(other Step) bool {
	return rank[s] < rank[other]
}

// IsTerminal reports whether the saga reached an end state
func (s Step) IsTerminal() bool {
	return s == StepCompleted || s == StepTimedOut || s == StepFailed
}

// State is the in-flight correlation state held by the coordinator. It is not
// a queryable aggregate; it is created on saga start and archived at the
// terminal transition.
type State struct {
	CorrelationId domain.CorrelationId
	AuctionId     domain.AuctionId
	Buyer         domain.UserId
	BuyerName     string
	Seller        domain.UserId
	SellerName    string
	Price         domain.Amount
	ItemTitle     string
	Step          Step
	StartedAt     time.Time
	UpdatedAt     time.Time
	Deadline      time.Time
}

// StateRepo stores in-flight saga state keyed by correlation id
type StateRepo interface {
	Create(c ctx.Ctx, s *State) error
	Get(c ctx.Ctx, id domain.CorrelationId) (*State, error)
	Update(c ctx.Ctx, s *State) error
	Delete(c ctx.Ctx, id domain.CorrelationId) error
	// FindExpired returns non-terminal sagas whose deadline has elapsed
	FindExpired(c ctx.Ctx, now time.Time) ([]*State, error)
}

// Result is the synchronous outcome of starting a buy-now attempt
type Result struct {
	CorrelationId domain.CorrelationId `json:"correlationId"`
	AuctionId     domain.AuctionId     `json:"auctionId"`
	Price         domain.Amount        `json:"price"`
}

// Coordinator drives the buy-now saga
type Coordinator interface {
	// Execute runs the entry guard and starts a saga; the loser of a
	// concurrent attempt receives domain.ErrBuyNowConflict immediately.
	Execute(c ctx.Ctx, auctionId domain.AuctionId, buyer domain.UserId, buyerName string) (*Result, error)

	// event handlers, reached through the bus
	OnAuctionReserved(c ctx.Ctx, msg *AuctionReservedForBuyNow) error
	OnReservationFailed(c ctx.Ctx, msg *AuctionReservationFailed) error
	OnOrderCreated(c ctx.Ctx, msg *BuyNowOrderCreated) error
	OnOrderFailed(c ctx.Ctx, msg *BuyNowOrderCreationFailed) error
	OnAuctionCompleted(c ctx.Ctx, msg *BuyNowAuctionCompleted) error

	// SweepExpired terminates sagas past their deadline, issuing compensation
	SweepExpired(c ctx.Ctx, now time.Time) error
}

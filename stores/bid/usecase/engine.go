package usecase

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/domain/bid"
	"github.com/bidhaus/goapi/domain/keys"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/lock"
	"github.com/bidhaus/goapi/service/query"
)

const (
	lockTTL  = 30 * time.Second
	lockWait = 5 * time.Second
)

type EngineCfg struct {
	BidRepo     bid.Repo
	AutoBidRepo bid.AutoBidRepo
	AuctionUC   auction.UseCase
	OutboxRepo  outbox.Repo
	Lock        lock.Service
	Query       query.Mongo

	// Clock defaults to the wall clock. Tests inject a mock to pin the
	// retraction window.
	Clock clock.Clock

	// Tiers defaults to bid.DefaultIncrementTiers.
	Tiers []bid.IncrementTier
}

type impl struct {
	bidRepo     bid.Repo
	autoBidRepo bid.AutoBidRepo
	auctionUC   auction.UseCase
	outboxRepo  outbox.Repo
	lock        lock.Service
	q           query.Mongo
	clock       clock.Clock
	tiers       []bid.IncrementTier
	met         metrics.Service
}

func New(cfg *EngineCfg) bid.Engine {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = bid.DefaultIncrementTiers
	}
	return &impl{
		bidRepo:     cfg.BidRepo,
		autoBidRepo: cfg.AutoBidRepo,
		auctionUC:   cfg.AuctionUC,
		outboxRepo:  cfg.OutboxRepo,
		lock:        cfg.Lock,
		q:           cfg.Query,
		clock:       clk,
		tiers:       tiers,
		met:         metrics.New("bid"),
	}
}

func (im *impl) PlaceBid(c ctx.Ctx, p *bid.PlaceBid) (*bid.Bid, error) {
	if !p.Amount.IsPositive() || p.Bidder == "" {
		return nil, domain.ErrBadParamInput
	}

	var placed *bid.Bid
	err := im.lock.WithLock(c, keys.AuctionBidLock(p.AuctionId), lockTTL, lockWait, func(c ctx.Ctx) error {
		if p.IdempotencyKey != "" {
			prev, err := im.bidRepo.FindByIdempotencyKey(c, p.AuctionId, p.IdempotencyKey)
			if err == nil {
				// retried submission, hand back what the first attempt recorded
				placed = prev
				return nil
			}
			if err != domain.ErrNotFound {
				return err
			}
		}

		a, err := im.auctionUC.Get(c, p.AuctionId)
		if err != nil {
			return err
		}
		if err := im.checkBiddable(c, a, p.Bidder); err != nil {
			return err
		}
		if p.Amount.LessThan(im.nextAcceptable(a)) {
			im.met.BumpSum("place.too_low", 1)
			return domain.ErrBidTooLow
		}

		placed, err = im.acceptBid(c, a, p.Bidder, p.BidderName, p.Amount, false, p.IdempotencyKey)
		if err != nil {
			return err
		}
		return im.runAutoBids(c, a)
	})
	if err != nil {
		return nil, err
	}
	im.met.BumpSum("place.accepted", 1)
	return placed, nil
}

func (im *impl) RetractBid(c ctx.Ctx, p *bid.RetractBid) error {
	b, err := im.bidRepo.FindOne(c, p.BidId)
	if err != nil {
		return err
	}
	if b.Bidder != p.UserId {
		return domain.ErrNotBidOwner
	}

	return im.lock.WithLock(c, keys.AuctionBidLock(b.AuctionId), lockTTL, lockWait, func(c ctx.Ctx) error {
		b, err := im.bidRepo.FindOne(c, p.BidId)
		if err != nil {
			return err
		}
		if b.Status == bid.StatusRejected {
			return domain.ErrBidAlreadyRejected
		}
		if im.clock.Now().Sub(b.PlacedAt) > bid.DefaultRetractionWindow {
			return domain.ErrRetractionWindowExpired
		}

		a, err := im.auctionUC.Get(c, b.AuctionId)
		if err != nil {
			return err
		}
		// a closed auction's outcome is settled, the standing bid must not move
		if a.Status != auction.StatusLive {
			return domain.ErrAuctionNotLive
		}
		if a.IsEnded(im.clock.Now()) {
			return domain.ErrAuctionEnded
		}

		err = im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
			if err := im.bidRepo.UpdateStatus(c, b.Id, bid.StatusRejected, p.Reason); err != nil {
				return err
			}
			if a.HighestBidder != b.Bidder || !a.HighestBid.Equal(b.Amount) {
				// not the standing bid, nothing to recompute
				return nil
			}
			top, err := im.highestAccepted(c, b.AuctionId, b.Id)
			if err != nil {
				return err
			}
			if top == nil {
				if err := im.auctionUC.SetHighestBid(c, a, domain.ZeroAmount, ""); err != nil {
					return err
				}
				return nil
			}
			if err := im.auctionUC.SetHighestBid(c, a, top.Amount, top.Bidder); err != nil {
				return err
			}
			return im.emitHighestChanged(c, top)
		})
		if err != nil {
			return err
		}
		im.met.BumpSum("retract", 1)

		// a freed spot may let a capped auto-bid back in
		return im.runAutoBids(c, a)
	})
}

func (im *impl) CreateAutoBid(c ctx.Ctx, p *bid.CreateAutoBid) (*bid.AutoBid, error) {
	if !p.MaxAmount.IsPositive() || p.User == "" {
		return nil, domain.ErrBadParamInput
	}

	var created *bid.AutoBid
	err := im.lock.WithLock(c, keys.AuctionBidLock(p.AuctionId), lockTTL, lockWait, func(c ctx.Ctx) error {
		a, err := im.auctionUC.Get(c, p.AuctionId)
		if err != nil {
			return err
		}
		if err := im.checkBiddable(c, a, p.User); err != nil {
			return err
		}
		if _, err := im.autoBidRepo.FindActiveByAuctionAndUser(c, p.AuctionId, p.User); err == nil {
			return domain.ErrAutoBidExists
		} else if err != domain.ErrNotFound {
			return err
		}
		if !p.MaxAmount.GreaterThanOrEqual(im.nextAcceptable(a)) {
			return domain.ErrAutoBidMaxTooLow
		}

		now := im.clock.Now()
		created = &bid.AutoBid{
			Id:               uuid.NewString(),
			AuctionId:        p.AuctionId,
			User:             p.User,
			UserName:         p.UserName,
			MaxAmount:        p.MaxAmount,
			CurrentBidAmount: domain.ZeroAmount,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := im.autoBidRepo.Insert(c, created); err != nil {
			return err
		}
		return im.runAutoBids(c, a)
	})
	if err != nil {
		return nil, err
	}
	im.met.BumpSum("autobid.created", 1)
	return created, nil
}

func (im *impl) UpdateAutoBid(c ctx.Ctx, p *bid.UpdateAutoBid) (*bid.AutoBid, error) {
	if !p.MaxAmount.IsPositive() {
		return nil, domain.ErrBadParamInput
	}
	ab, err := im.autoBidRepo.FindOne(c, p.AutoBidId)
	if err != nil {
		return nil, err
	}
	if ab.User != p.User {
		return nil, domain.ErrNotBidOwner
	}

	err = im.lock.WithLock(c, keys.AuctionBidLock(ab.AuctionId), lockTTL, lockWait, func(c ctx.Ctx) error {
		ab, err = im.autoBidRepo.FindOne(c, p.AutoBidId)
		if err != nil {
			return err
		}
		if !ab.IsActive {
			return domain.ErrAutoBidInactive
		}
		a, err := im.auctionUC.Get(c, ab.AuctionId)
		if err != nil {
			return err
		}
		if err := im.checkBiddable(c, a, ab.User); err != nil {
			return err
		}
		// the leader only has to keep covering its own standing amount,
		// everyone else must still be able to clear the next step
		floor := im.nextAcceptable(a)
		if a.HighestBidder == ab.User {
			floor = a.HighestBid
		}
		if !p.MaxAmount.GreaterThanOrEqual(floor) {
			return domain.ErrAutoBidMaxTooLow
		}

		ab.MaxAmount = p.MaxAmount
		if err := im.autoBidRepo.Update(c, ab); err != nil {
			return err
		}
		return im.runAutoBids(c, a)
	})
	if err != nil {
		return nil, err
	}
	return ab, nil
}

func (im *impl) CancelAutoBid(c ctx.Ctx, p *bid.CancelAutoBid) error {
	ab, err := im.autoBidRepo.FindOne(c, p.AutoBidId)
	if err != nil {
		return err
	}
	if ab.User != p.User {
		return domain.ErrNotBidOwner
	}

	return im.lock.WithLock(c, keys.AuctionBidLock(ab.AuctionId), lockTTL, lockWait, func(c ctx.Ctx) error {
		ab, err := im.autoBidRepo.FindOne(c, p.AutoBidId)
		if err != nil {
			return err
		}
		if !ab.IsActive {
			return domain.ErrAutoBidInactive
		}
		ab.IsActive = false
		return im.autoBidRepo.Update(c, ab)
	})
}

func (im *impl) checkBiddable(c ctx.Ctx, a *auction.Auction, user domain.UserId) error {
	if a.Status != auction.StatusLive {
		return domain.ErrAuctionNotLive
	}
	if a.IsEnded(im.clock.Now()) {
		return domain.ErrAuctionEnded
	}
	if a.Seller == user {
		return domain.ErrSelfBid
	}
	return nil
}

// nextAcceptable is the lowest amount a new bid must reach. The opening
// bid only needs to cover the base step.
func (im *impl) nextAcceptable(a *auction.Auction) domain.Amount {
	if a.HighestBidder == "" {
		return bid.MinIncrement(im.tiers, domain.ZeroAmount)
	}
	return a.HighestBid.Plus(bid.MinIncrement(im.tiers, a.HighestBid))
}

// acceptBid persists the bid, moves the auction's standing bid and appends
// the announcement, all in one transaction.
func (im *impl) acceptBid(c ctx.Ctx, a *auction.Auction, bidder domain.UserId, bidderName string, amount domain.Amount, isAuto bool, idemKey string) (*bid.Bid, error) {
	b := &bid.Bid{
		Id:             uuid.NewString(),
		AuctionId:      a.Id,
		Bidder:         bidder,
		BidderName:     bidderName,
		Amount:         amount,
		Status:         bid.StatusAccepted,
		IsAutoBid:      isAuto,
		IdempotencyKey: idemKey,
		PlacedAt:       im.clock.Now(),
	}
	err := im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
		if err := im.bidRepo.Insert(c, b); err != nil {
			return err
		}
		if err := im.auctionUC.SetHighestBid(c, a, amount, bidder); err != nil {
			return err
		}
		return im.emitHighestChanged(c, b)
	})
	if err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": a.Id,
			"bidder":    bidder,
		}).Error("failed to accept bid")
		return nil, err
	}
	return b, nil
}

// runAutoBids replays active auto-bids against the standing bid until no
// one can raise. A capped auto-bid may land below the full step when its
// ceiling runs out; ties go to the earliest created auto-bid.
func (im *impl) runAutoBids(c ctx.Ctx, a *auction.Auction) error {
	for {
		autoBids, err := im.autoBidRepo.FindActiveByAuction(c, a.Id)
		if err != nil {
			return err
		}

		var next *bid.AutoBid
		for i := range autoBids {
			ab := &autoBids[i]
			if ab.User == a.HighestBidder {
				continue
			}
			if !ab.MaxAmount.GreaterThan(a.HighestBid) {
				continue
			}
			if next == nil || ab.CreatedAt.Before(next.CreatedAt) {
				next = ab
			}
		}
		if next == nil {
			return nil
		}

		counter := a.HighestBid.Plus(bid.MinIncrement(im.tiers, a.HighestBid))
		if a.HighestBidder == "" {
			counter = bid.MinIncrement(im.tiers, domain.ZeroAmount)
		}
		if next.MaxAmount.LessThan(counter) {
			counter = next.MaxAmount
		}

		if _, err := im.acceptBid(c, a, next.User, next.UserName, counter, true, ""); err != nil {
			return err
		}

		next.CurrentBidAmount = counter
		if err := im.autoBidRepo.Update(c, next); err != nil {
			return err
		}
	}
}

// highestAccepted returns the standing accepted bid excluding exclude,
// preferring the largest amount and breaking ties on earliest placement.
func (im *impl) highestAccepted(c ctx.Ctx, auctionId domain.AuctionId, exclude string) (*bid.Bid, error) {
	all, err := im.bidRepo.FindAllAccepted(c, auctionId)
	if err != nil {
		return nil, err
	}
	var top *bid.Bid
	for i := range all {
		b := &all[i]
		if b.Id == exclude {
			continue
		}
		if top == nil ||
			b.Amount.GreaterThan(top.Amount) ||
			(b.Amount.Equal(top.Amount) && b.PlacedAt.Before(top.PlacedAt)) {
			top = b
		}
	}
	return top, nil
}

func (im *impl) emitHighestChanged(c ctx.Ctx, b *bid.Bid) error {
	evt, err := outbox.NewEvent(
		bid.TopicHighestChanged,
		string(b.AuctionId),
		domain.CorrelationId(b.Id),
		&bid.HighestChanged{
			AuctionId:  b.AuctionId,
			BidId:      b.Id,
			Bidder:     b.Bidder,
			BidderName: b.BidderName,
			Amount:     b.Amount,
			IsAutoBid:  b.IsAutoBid,
			ChangedAt:  b.PlacedAt,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

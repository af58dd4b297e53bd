package usecase

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/keys"
	"github.com/bidhaus/goapi/service/bus"
	"github.com/bidhaus/goapi/service/lock"
)

const (
	defaultTimeout = 30 * time.Second

	// the lease outlives the deadline so the sweep can still compensate
	// while holding exclusivity
	lockGrace = 10 * time.Second
)

type CoordinatorCfg struct {
	StateRepo buynow.StateRepo
	AuctionUC auction.UseCase
	Bus       bus.Bus
	Lock      lock.Service

	// Timeout is the saga deadline, defaulting to defaultTimeout.
	Timeout time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

type impl struct {
	stateRepo buynow.StateRepo
	auctionUC auction.UseCase
	bus       bus.Bus
	lock      lock.Service
	timeout   time.Duration
	clock     clock.Clock
	met       metrics.Service

	mu      sync.Mutex
	handles map[domain.CorrelationId]lock.Handle
}

func New(cfg *CoordinatorCfg) buynow.Coordinator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &impl{
		stateRepo: cfg.StateRepo,
		auctionUC: cfg.AuctionUC,
		bus:       cfg.Bus,
		lock:      cfg.Lock,
		timeout:   timeout,
		clock:     clk,
		met:       metrics.New("buynow"),
		handles:   map[domain.CorrelationId]lock.Handle{},
	}
}

// Execute runs the entry guard and kicks off the saga. The buy-now lock is
// taken without waiting so the loser of a race fails fast instead of
// queueing behind a purchase that will make the auction unavailable.
func (im *impl) Execute(c ctx.Ctx, auctionId domain.AuctionId, buyer domain.UserId, buyerName string) (*buynow.Result, error) {
	a, err := im.auctionUC.Get(c, auctionId)
	if err != nil {
		return nil, err
	}
	if err := checkPurchasable(a, buyer); err != nil {
		return nil, err
	}

	hdl, err := im.lock.TryAcquire(c, keys.AuctionBuyNowLock(auctionId), im.timeout+lockGrace)
	if err != nil {
		if err == domain.ErrLockBusy {
			im.met.BumpSum("execute.conflict", 1)
			return nil, domain.ErrBuyNowConflict
		}
		return nil, err
	}

	// re-check under the lock, the auction may have moved
	a, err = im.auctionUC.Get(c, auctionId)
	if err == nil {
		err = checkPurchasable(a, buyer)
	}
	if err != nil {
		im.releaseHandle(c, hdl)
		return nil, err
	}

	now := im.clock.Now()
	state := &buynow.State{
		CorrelationId: domain.CorrelationId(uuid.NewString()),
		AuctionId:     auctionId,
		Buyer:         buyer,
		BuyerName:     buyerName,
		Seller:        a.Seller,
		SellerName:    a.SellerName,
		Price:         *a.BuyNowPrice,
		ItemTitle:     a.ItemTitle,
		Step:          buynow.StepReservationPending,
		StartedAt:     now,
		UpdatedAt:     now,
		Deadline:      now.Add(im.timeout),
	}
	if err := im.stateRepo.Create(c, state); err != nil {
		im.releaseHandle(c, hdl)
		return nil, err
	}

	im.mu.Lock()
	im.handles[state.CorrelationId] = hdl
	im.mu.Unlock()

	if err := im.publishStart(c, state); err != nil {
		im.abandon(c, state.CorrelationId)
		return nil, err
	}

	im.met.BumpSum("execute.started", 1)
	return &buynow.Result{
		CorrelationId: state.CorrelationId,
		AuctionId:     auctionId,
		Price:         state.Price,
	}, nil
}

func (im *impl) OnAuctionReserved(c ctx.Ctx, msg *buynow.AuctionReservedForBuyNow) error {
	state, err := im.loadActive(c, msg.CorrelationId)
	if state == nil {
		return err
	}
	if !state.Step.Before(buynow.StepOrderPending) {
		// duplicate outcome, the order command is already out
		return nil
	}

	state.Step = buynow.StepOrderPending
	if err := im.stateRepo.Update(c, state); err != nil {
		return err
	}
	return im.bus.Publish(c, buynow.TopicCreateOrder, string(state.CorrelationId), state.CorrelationId,
		&buynow.CreateBuyNowOrder{
			CorrelationId: state.CorrelationId,
			AuctionId:     state.AuctionId,
			Buyer:         state.Buyer,
			BuyerName:     state.BuyerName,
			Seller:        state.Seller,
			SellerName:    state.SellerName,
			Price:         state.Price,
			ItemTitle:     state.ItemTitle,
		})
}

func (im *impl) OnReservationFailed(c ctx.Ctx, msg *buynow.AuctionReservationFailed) error {
	state, err := im.loadActive(c, msg.CorrelationId)
	if state == nil {
		return err
	}

	c.WithFields(log.Fields{
		"correlationId": msg.CorrelationId,
		"auctionId":     msg.AuctionId,
		"reason":        msg.Reason,
	}).Info("buy-now reservation failed")
	im.met.BumpSum("saga.failed", 1, "reason", string(msg.Reason))

	// nothing was reserved, no compensation to issue
	return im.terminate(c, state, buynow.StepFailed)
}

func (im *impl) OnOrderCreated(c ctx.Ctx, msg *buynow.BuyNowOrderCreated) error {
	state, err := im.loadActive(c, msg.CorrelationId)
	if state == nil {
		return err
	}
	if !state.Step.Before(buynow.StepCompleting) {
		return nil
	}

	state.Step = buynow.StepCompleting
	if err := im.stateRepo.Update(c, state); err != nil {
		return err
	}
	return im.bus.Publish(c, buynow.TopicCompleteAuction, string(state.AuctionId), state.CorrelationId,
		&buynow.CompleteBuyNowAuction{
			CorrelationId: state.CorrelationId,
			AuctionId:     state.AuctionId,
			Winner:        state.Buyer,
			WinnerName:    state.BuyerName,
			Price:         state.Price,
		})
}

func (im *impl) OnOrderFailed(c ctx.Ctx, msg *buynow.BuyNowOrderCreationFailed) error {
	state, err := im.loadActive(c, msg.CorrelationId)
	if state == nil {
		return err
	}

	c.WithFields(log.Fields{
		"correlationId": msg.CorrelationId,
		"auctionId":     msg.AuctionId,
		"reason":        msg.Reason,
	}).Warn("buy-now order creation failed, releasing reservation")
	im.met.BumpSum("saga.failed", 1, "reason", "order")

	if err := im.publishRelease(c, state); err != nil {
		return err
	}
	return im.terminate(c, state, buynow.StepFailed)
}

func (im *impl) OnAuctionCompleted(c ctx.Ctx, msg *buynow.BuyNowAuctionCompleted) error {
	state, err := im.loadActive(c, msg.CorrelationId)
	if state == nil {
		return err
	}

	err = im.bus.Publish(c, buynow.TopicSagaCompleted, string(state.CorrelationId), state.CorrelationId,
		&buynow.BuyNowSagaCompleted{
			CorrelationId: state.CorrelationId,
			AuctionId:     state.AuctionId,
			Buyer:         state.Buyer,
			Seller:        state.Seller,
			Price:         state.Price,
			ItemTitle:     state.ItemTitle,
			CompletedAt:   msg.CompletedAt,
		})
	if err != nil {
		return err
	}

	im.met.BumpSum("saga.completed", 1)
	return im.terminate(c, state, buynow.StepCompleted)
}

// SweepExpired times out sagas stuck past their deadline. The reservation
// release is idempotent on the auction side, so sweeping a saga whose
// reservation never happened is harmless.
func (im *impl) SweepExpired(c ctx.Ctx, now time.Time) error {
	expired, err := im.stateRepo.FindExpired(c, now)
	if err != nil {
		return err
	}
	for _, state := range expired {
		c.WithFields(log.Fields{
			"correlationId": state.CorrelationId,
			"auctionId":     state.AuctionId,
			"step":          state.Step,
		}).Warn("buy-now saga timed out")

		if err := im.publishRelease(c, state); err != nil {
			return err
		}
		err = im.bus.Publish(c, buynow.TopicSagaTimedOut, string(state.CorrelationId), state.CorrelationId,
			&buynow.BuyNowSagaTimedOut{
				CorrelationId: state.CorrelationId,
				AuctionId:     state.AuctionId,
				Buyer:         state.Buyer,
				TimedOutAt:    now,
			})
		if err != nil {
			return err
		}

		im.met.BumpSum("saga.timedout", 1)
		if err := im.terminate(c, state, buynow.StepTimedOut); err != nil {
			return err
		}
	}
	return nil
}

func checkPurchasable(a *auction.Auction, buyer domain.UserId) error {
	if a.Seller == buyer {
		return domain.ErrSelfBid
	}
	if a.Status == auction.StatusFinished && a.Winner != "" {
		return domain.ErrBuyNowConflictPurchased
	}
	if a.ReservedBy != "" {
		return domain.ErrBuyNowConflict
	}
	if !a.IsBuyNowAvailable() {
		return domain.ErrBuyNowUnavailable
	}
	return nil
}

// loadActive resolves the saga for an incoming event. A missing or already
// terminal saga returns (nil, nil) so redelivered events are swallowed.
func (im *impl) loadActive(c ctx.Ctx, id domain.CorrelationId) (*buynow.State, error) {
	state, err := im.stateRepo.Get(c, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if state.Step.IsTerminal() {
		return nil, nil
	}
	return state, nil
}

func (im *impl) publishStart(c ctx.Ctx, state *buynow.State) error {
	err := im.bus.Publish(c, buynow.TopicSagaStarted, string(state.CorrelationId), state.CorrelationId,
		&buynow.BuyNowSagaStarted{
			CorrelationId: state.CorrelationId,
			AuctionId:     state.AuctionId,
			Buyer:         state.Buyer,
			BuyerName:     state.BuyerName,
			Seller:        state.Seller,
			SellerName:    state.SellerName,
			Price:         state.Price,
			ItemTitle:     state.ItemTitle,
			StartedAt:     state.StartedAt,
		})
	if err != nil {
		return err
	}
	return im.bus.Publish(c, buynow.TopicReserveAuction, string(state.AuctionId), state.CorrelationId,
		&buynow.ReserveAuctionForBuyNow{
			CorrelationId: state.CorrelationId,
			AuctionId:     state.AuctionId,
			Buyer:         state.Buyer,
		})
}

func (im *impl) publishRelease(c ctx.Ctx, state *buynow.State) error {
	return im.bus.Publish(c, buynow.TopicReleaseReservation, string(state.AuctionId), state.CorrelationId,
		&buynow.ReleaseAuctionReservation{
			CorrelationId: state.CorrelationId,
			AuctionId:     state.AuctionId,
		})
}

// terminate records the end state and frees the buy-now lock.
func (im *impl) terminate(c ctx.Ctx, state *buynow.State, step buynow.Step) error {
	state.Step = step
	if err := im.stateRepo.Update(c, state); err != nil {
		return err
	}
	im.releaseByCorrelation(c, state.CorrelationId)
	return nil
}

// abandon rolls back a saga whose start could not be announced.
func (im *impl) abandon(c ctx.Ctx, id domain.CorrelationId) {
	if err := im.stateRepo.Delete(c, id); err != nil {
		c.WithFields(log.Fields{
			"err":           err,
			"correlationId": id,
		}).Warn("failed to delete abandoned saga state")
	}
	im.releaseByCorrelation(c, id)
}

func (im *impl) releaseByCorrelation(c ctx.Ctx, id domain.CorrelationId) {
	im.mu.Lock()
	hdl, ok := im.handles[id]
	delete(im.handles, id)
	im.mu.Unlock()
	if ok {
		im.releaseHandle(c, hdl)
	}
}

func (im *impl) releaseHandle(c ctx.Ctx, hdl lock.Handle) {
	if err := hdl.Release(c); err != nil && err != lock.ErrNotHeld {
		c.WithFields(log.Fields{
			"err": err,
			"key": hdl.Key(),
		}).Warn("failed to release buy-now lock")
	}
}

package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/domain/bid"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/lock"
	"github.com/bidhaus/goapi/service/query"
	auctionuc "github.com/bidhaus/goapi/stores/auction/usecase"
)

type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[domain.AuctionId]auction.Auction
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{auctions: map[domain.AuctionId]auction.Auction{}}
}

func (f *fakeAuctionRepo) FindOne(c ctx.Ctx, id domain.AuctionId) (*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (f *fakeAuctionRepo) Insert(c ctx.Ctx, a *auction.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.auctions[a.Id]; ok {
		return domain.ErrAlreadyExists
	}
	f.auctions[a.Id] = *a
	return nil
}

func (f *fakeAuctionRepo) Update(c ctx.Ctx, a *auction.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.auctions[a.Id]
	if !ok || stored.Version != a.Version {
		return domain.ErrConcurrencyConflict
	}
	a.Version++
	a.UpdatedAt = time.Now()
	f.auctions[a.Id] = *a
	return nil
}

type fakeBidRepo struct {
	mu   sync.Mutex
	bids []bid.Bid
}

func (f *fakeBidRepo) Insert(c ctx.Ctx, b *bid.Bid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bids = append(f.bids, *b)
	return nil
}

func (f *fakeBidRepo) FindOne(c ctx.Ctx, id string) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bids {
		if f.bids[i].Id == id {
			cp := f.bids[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBidRepo) FindAllAccepted(c ctx.Ctx, auctionId domain.AuctionId) ([]bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []bid.Bid{}
	for i := range f.bids {
		if f.bids[i].AuctionId == auctionId && f.bids[i].Status == bid.StatusAccepted {
			res = append(res, f.bids[i])
		}
	}
	return res, nil
}

func (f *fakeBidRepo) FindByIdempotencyKey(c ctx.Ctx, auctionId domain.AuctionId, key string) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bids {
		if f.bids[i].AuctionId == auctionId && f.bids[i].IdempotencyKey == key {
			cp := f.bids[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBidRepo) UpdateStatus(c ctx.Ctx, id string, status bid.Status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bids {
		if f.bids[i].Id == id {
			f.bids[i].Status = status
			f.bids[i].RejectReason = reason
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeAutoBidRepo struct {
	mu       sync.Mutex
	autoBids []bid.AutoBid
}

func (f *fakeAutoBidRepo) Insert(c ctx.Ctx, a *bid.AutoBid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoBids = append(f.autoBids, *a)
	return nil
}

func (f *fakeAutoBidRepo) FindOne(c ctx.Ctx, id string) (*bid.AutoBid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.autoBids {
		if f.autoBids[i].Id == id {
			cp := f.autoBids[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAutoBidRepo) FindActiveByAuction(c ctx.Ctx, auctionId domain.AuctionId) ([]bid.AutoBid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []bid.AutoBid{}
	for i := range f.autoBids {
		if f.autoBids[i].AuctionId == auctionId && f.autoBids[i].IsActive {
			res = append(res, f.autoBids[i])
		}
	}
	return res, nil
}

func (f *fakeAutoBidRepo) FindActiveByAuctionAndUser(c ctx.Ctx, auctionId domain.AuctionId, user domain.UserId) (*bid.AutoBid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.autoBids {
		if f.autoBids[i].AuctionId == auctionId && f.autoBids[i].User == user && f.autoBids[i].IsActive {
			cp := f.autoBids[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAutoBidRepo) Update(c ctx.Ctx, a *bid.AutoBid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.autoBids {
		if f.autoBids[i].Id == a.Id {
			f.autoBids[i] = *a
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (f *fakeOutboxRepo) Insert(c ctx.Ctx, e *outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeOutboxRepo) FindPending(c ctx.Ctx, limit int) ([]outbox.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []outbox.Event{}
	for i := range f.events {
		if f.events[i].Status == outbox.StatusPending {
			res = append(res, f.events[i])
		}
		if limit > 0 && len(res) >= limit {
			break
		}
	}
	return res, nil
}

func (f *fakeOutboxRepo) MarkDispatched(c ctx.Ctx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].Id == id {
			f.events[i].Status = outbox.StatusDispatched
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeOutboxRepo) BumpAttempts(c ctx.Ctx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].Id == id {
			f.events[i].Attempts++
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeOutboxRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: map[string]bool{}}
}

func (f *fakeLock) TryAcquire(c ctx.Ctx, key string, ttl time.Duration) (lock.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockBusy
	}
	f.held[key] = true
	return &fakeHandle{key: key, owner: f}, nil
}

func (f *fakeLock) Acquire(c ctx.Ctx, key string, ttl, wait time.Duration) (lock.Handle, error) {
	hdl, err := f.TryAcquire(c, key, ttl)
	if err == domain.ErrLockBusy {
		return nil, domain.ErrLockTimeout
	}
	return hdl, err
}

func (f *fakeLock) WithLock(c ctx.Ctx, key string, ttl, wait time.Duration, fn func(ctx.Ctx) error) error {
	hdl, err := f.Acquire(c, key, ttl, wait)
	if err != nil {
		return err
	}
	defer hdl.Release(c)
	return fn(c)
}

type fakeHandle struct {
	key   string
	owner *fakeLock
}

func (h *fakeHandle) Key() string { return h.key }

func (h *fakeHandle) Extend(c ctx.Ctx, ttl time.Duration) error { return nil }

func (h *fakeHandle) Release(c ctx.Ctx) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	delete(h.owner.held, h.key)
	return nil
}

type passQuery struct {
	query.Mongo
}

func (passQuery) RunWithTransaction(c ctx.Ctx, run func(ctx.Ctx) error) error {
	return run(c)
}

type engineSuite struct {
	suite.Suite

	auctionRepo *fakeAuctionRepo
	bidRepo     *fakeBidRepo
	autoBidRepo *fakeAutoBidRepo
	outboxRepo  *fakeOutboxRepo
	clk         *clock.Mock
	engine      bid.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(engineSuite))
}

func (s *engineSuite) SetupTest() {
	s.auctionRepo = newFakeAuctionRepo()
	s.bidRepo = &fakeBidRepo{}
	s.autoBidRepo = &fakeAutoBidRepo{}
	s.outboxRepo = &fakeOutboxRepo{}
	s.clk = clock.NewMock()
	s.clk.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	auctionUC := auctionuc.New(&auctionuc.AuctionUseCaseCfg{
		AuctionRepo: s.auctionRepo,
		OutboxRepo:  s.outboxRepo,
		Query:       passQuery{},
	})
	s.engine = New(&EngineCfg{
		BidRepo:     s.bidRepo,
		AutoBidRepo: s.autoBidRepo,
		AuctionUC:   auctionUC,
		OutboxRepo:  s.outboxRepo,
		Lock:        newFakeLock(),
		Query:       passQuery{},
		Clock:       s.clk,
	})
}

func (s *engineSuite) seedLiveAuction(id domain.AuctionId) {
	s.Require().NoError(s.auctionRepo.Insert(ctx.Background(), &auction.Auction{
		Id:        id,
		Seller:    "seller",
		Status:    auction.StatusLive,
		EndTime:   s.clk.Now().Add(24 * time.Hour),
		Version:   1,
		CreatedAt: s.clk.Now(),
		UpdatedAt: s.clk.Now(),
	}))
}

func (s *engineSuite) auctionState(id domain.AuctionId) *auction.Auction {
	a, err := s.auctionRepo.FindOne(ctx.Background(), id)
	s.Require().NoError(err)
	return a
}

func (s *engineSuite) place(auctionId domain.AuctionId, bidder domain.UserId, amount string) (*bid.Bid, error) {
	return s.engine.PlaceBid(ctx.Background(), &bid.PlaceBid{
		AuctionId:  auctionId,
		Bidder:     bidder,
		BidderName: string(bidder),
		Amount:     domain.MustAmount(amount),
	})
}

func (s *engineSuite) TestOpeningAndIncrements() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.NoError(err)

	a := s.auctionState("a1")
	s.True(a.HighestBid.Equal(domain.MustAmount("100")))
	s.Equal(domain.UserId("alice"), a.HighestBidder)

	// amounts at or under highest plus the tier step are rejected
	_, err = s.place("a1", "bob", "100")
	s.ErrorIs(err, domain.ErrBidTooLow)
	_, err = s.place("a1", "bob", "105")
	s.ErrorIs(err, domain.ErrBidTooLow)

	_, err = s.place("a1", "bob", "110")
	s.NoError(err)
	s.Equal(domain.UserId("bob"), s.auctionState("a1").HighestBidder)
}

func (s *engineSuite) TestOpeningBidMustCoverBaseStep() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "0.5")
	s.ErrorIs(err, domain.ErrBidTooLow)

	_, err = s.place("a1", "alice", "1")
	s.NoError(err)
}

func (s *engineSuite) TestPlaceBidGuards() {
	c := ctx.Background()

	s.Require().NoError(s.auctionRepo.Insert(c, &auction.Auction{
		Id: "scheduled", Seller: "seller", Status: auction.StatusScheduled, Version: 1,
	}))
	_, err := s.place("scheduled", "alice", "10")
	s.ErrorIs(err, domain.ErrAuctionNotLive)

	s.Require().NoError(s.auctionRepo.Insert(c, &auction.Auction{
		Id: "ended", Seller: "seller", Status: auction.StatusLive,
		EndTime: s.clk.Now().Add(-time.Minute), Version: 1,
	}))
	_, err = s.place("ended", "alice", "10")
	s.ErrorIs(err, domain.ErrAuctionEnded)

	s.seedLiveAuction("a1")
	_, err = s.place("a1", "seller", "10")
	s.ErrorIs(err, domain.ErrSelfBid)
}

func (s *engineSuite) TestAutoBidCountersManualBid() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1",
		User:      "bob",
		UserName:  "bob",
		MaxAmount: domain.MustAmount("120"),
	})
	s.Require().NoError(err)

	// proxy responds one step above the standing bid
	a := s.auctionState("a1")
	s.Equal(domain.UserId("bob"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("110")))

	// alice takes the proxy to its ceiling and wins the exchange
	_, err = s.place("a1", "alice", "120")
	s.Require().NoError(err)

	a = s.auctionState("a1")
	s.Equal(domain.UserId("alice"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("120")))

	bids, err := s.bidRepo.FindAllAccepted(ctx.Background(), "a1")
	s.Require().NoError(err)
	s.Len(bids, 3)
	auto := 0
	for _, b := range bids {
		if b.IsAutoBid {
			auto++
		}
	}
	s.Equal(1, auto)
}

func (s *engineSuite) TestTwoAutoBidsConvergeWithEarliestWinningTies() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("150"),
	})
	s.Require().NoError(err)

	s.clk.Add(time.Second)
	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "carol", UserName: "carol", MaxAmount: domain.MustAmount("150"),
	})
	s.Require().NoError(err)

	// both ceilings are equal, the earlier auto-bid ends up on top
	a := s.auctionState("a1")
	s.Equal(domain.UserId("bob"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("150")))
}

func (s *engineSuite) TestAutoBidCeilingMustCoverNextStep() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("105"),
	})
	s.ErrorIs(err, domain.ErrAutoBidMaxTooLow)
}

func (s *engineSuite) TestExhaustedAutoBidStopsAtItsCeiling() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("125"),
	})
	s.Require().NoError(err)

	_, err = s.place("a1", "alice", "120")
	s.Require().NoError(err)

	// bob's ceiling runs out under the full step, he still bids it
	a := s.auctionState("a1")
	s.Equal(domain.UserId("bob"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("125")))
}

func (s *engineSuite) TestSingleActiveAutoBidPerUser() {
	s.seedLiveAuction("a1")

	_, err := s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("50"),
	})
	s.Require().NoError(err)

	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("80"),
	})
	s.ErrorIs(err, domain.ErrAutoBidExists)
}

func (s *engineSuite) TestUpdateAutoBidResumesBidding() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	ab, err := s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("110"),
	})
	s.Require().NoError(err)
	s.Equal(domain.UserId("bob"), s.auctionState("a1").HighestBidder)

	_, err = s.place("a1", "alice", "120")
	s.Require().NoError(err)

	_, err = s.engine.UpdateAutoBid(ctx.Background(), &bid.UpdateAutoBid{
		AutoBidId: ab.Id, User: "bob", MaxAmount: domain.MustAmount("150"),
	})
	s.Require().NoError(err)

	a := s.auctionState("a1")
	s.Equal(domain.UserId("bob"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("130")))
}

func (s *engineSuite) TestCancelAutoBidStopsCountering() {
	s.seedLiveAuction("a1")

	ab, err := s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("100"),
	})
	s.Require().NoError(err)

	s.NoError(s.engine.CancelAutoBid(ctx.Background(), &bid.CancelAutoBid{
		AutoBidId: ab.Id, User: "bob",
	}))

	_, err = s.place("a1", "alice", "50")
	s.Require().NoError(err)
	s.Equal(domain.UserId("alice"), s.auctionState("a1").HighestBidder)

	err = s.engine.CancelAutoBid(ctx.Background(), &bid.CancelAutoBid{
		AutoBidId: ab.Id, User: "bob",
	})
	s.ErrorIs(err, domain.ErrAutoBidInactive)
}

func (s *engineSuite) TestAutoBidOwnership() {
	s.seedLiveAuction("a1")

	ab, err := s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("100"),
	})
	s.Require().NoError(err)

	err = s.engine.CancelAutoBid(ctx.Background(), &bid.CancelAutoBid{
		AutoBidId: ab.Id, User: "mallory",
	})
	s.ErrorIs(err, domain.ErrNotBidOwner)

	_, err = s.engine.UpdateAutoBid(ctx.Background(), &bid.UpdateAutoBid{
		AutoBidId: ab.Id, User: "mallory", MaxAmount: domain.MustAmount("200"),
	})
	s.ErrorIs(err, domain.ErrNotBidOwner)
}

func (s *engineSuite) TestRetractRestoresPriorHighest() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)
	top, err := s.place("a1", "bob", "110")
	s.Require().NoError(err)

	s.NoError(s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: top.Id, UserId: "bob", Reason: "entered wrong amount",
	}))

	a := s.auctionState("a1")
	s.Equal(domain.UserId("alice"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("100")))

	err = s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: top.Id, UserId: "bob",
	})
	s.ErrorIs(err, domain.ErrBidAlreadyRejected)
}

func (s *engineSuite) TestRetractWindowAndOwnership() {
	s.seedLiveAuction("a1")

	b, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	err = s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: b.Id, UserId: "bob",
	})
	s.ErrorIs(err, domain.ErrNotBidOwner)

	s.clk.Add(bid.DefaultRetractionWindow)
	later, err := s.place("a1", "bob", "110")
	s.Require().NoError(err)

	s.clk.Add(time.Second)
	err = s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: b.Id, UserId: "alice",
	})
	s.ErrorIs(err, domain.ErrRetractionWindowExpired)

	s.NoError(s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: later.Id, UserId: "bob",
	}))
}

func (s *engineSuite) TestRetractNonStandingBidKeepsHighest() {
	s.seedLiveAuction("a1")

	low, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)
	_, err = s.place("a1", "bob", "110")
	s.Require().NoError(err)

	s.NoError(s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: low.Id, UserId: "alice",
	}))

	a := s.auctionState("a1")
	s.Equal(domain.UserId("bob"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("110")))
}

func (s *engineSuite) TestPlaceBidCollapsesOnRepeatedSubmissionKey() {
	s.seedLiveAuction("a1")

	first, err := s.engine.PlaceBid(ctx.Background(), &bid.PlaceBid{
		AuctionId:      "a1",
		Bidder:         "alice",
		BidderName:     "alice",
		Amount:         domain.MustAmount("100"),
		IdempotencyKey: "req-1",
	})
	s.Require().NoError(err)

	// the retried request lands on the recorded bid instead of raising again
	again, err := s.engine.PlaceBid(ctx.Background(), &bid.PlaceBid{
		AuctionId:      "a1",
		Bidder:         "alice",
		BidderName:     "alice",
		Amount:         domain.MustAmount("100"),
		IdempotencyKey: "req-1",
	})
	s.Require().NoError(err)
	s.Equal(first.Id, again.Id)

	bids, err := s.bidRepo.FindAllAccepted(ctx.Background(), "a1")
	s.Require().NoError(err)
	s.Len(bids, 1)

	a := s.auctionState("a1")
	s.True(a.HighestBid.Equal(domain.MustAmount("100")))
	s.Equal(domain.UserId("alice"), a.HighestBidder)
}

func (s *engineSuite) TestRetractAfterAuctionClosesIsRejected() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)
	top, err := s.place("a1", "bob", "110")
	s.Require().NoError(err)

	closed := s.auctionState("a1")
	closed.Status = auction.StatusFinished
	closed.Winner = "bob"
	s.Require().NoError(s.auctionRepo.Update(ctx.Background(), closed))

	// still inside the retraction window, but the outcome is settled
	s.clk.Add(time.Minute)
	err = s.engine.RetractBid(ctx.Background(), &bid.RetractBid{
		BidId: top.Id, UserId: "bob", Reason: "changed my mind",
	})
	s.ErrorIs(err, domain.ErrAuctionNotLive)

	a := s.auctionState("a1")
	s.Equal(domain.UserId("bob"), a.HighestBidder)
	s.True(a.HighestBid.Equal(domain.MustAmount("110")))
	s.Equal(domain.UserId("bob"), a.Winner)

	stored, err := s.bidRepo.FindOne(ctx.Background(), top.Id)
	s.Require().NoError(err)
	s.Equal(bid.StatusAccepted, stored.Status)
}

func (s *engineSuite) TestRetractAfterEndTimeIsRejected() {
	c := ctx.Background()
	s.Require().NoError(s.auctionRepo.Insert(c, &auction.Auction{
		Id:      "a1",
		Seller:  "seller",
		Status:  auction.StatusLive,
		EndTime: s.clk.Now().Add(time.Minute),
		Version: 1,
	}))

	b, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	s.clk.Add(2 * time.Minute)
	err = s.engine.RetractBid(c, &bid.RetractBid{BidId: b.Id, UserId: "alice"})
	s.ErrorIs(err, domain.ErrAuctionEnded)
}

func (s *engineSuite) TestLeaderCannotDropCeilingBelowStandingBid() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)

	ab, err := s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("120"),
	})
	s.Require().NoError(err)
	s.True(s.auctionState("a1").HighestBid.Equal(domain.MustAmount("110")))

	// bob leads at 110, his committed amount is the floor
	_, err = s.engine.UpdateAutoBid(ctx.Background(), &bid.UpdateAutoBid{
		AutoBidId: ab.Id, User: "bob", MaxAmount: domain.MustAmount("50"),
	})
	s.ErrorIs(err, domain.ErrAutoBidMaxTooLow)

	updated, err := s.engine.UpdateAutoBid(ctx.Background(), &bid.UpdateAutoBid{
		AutoBidId: ab.Id, User: "bob", MaxAmount: domain.MustAmount("110"),
	})
	s.Require().NoError(err)
	s.True(updated.MaxAmount.Equal(domain.MustAmount("110")))
}

func (s *engineSuite) TestEveryAcceptedBidIsAnnounced() {
	s.seedLiveAuction("a1")

	_, err := s.place("a1", "alice", "100")
	s.Require().NoError(err)
	_, err = s.engine.CreateAutoBid(ctx.Background(), &bid.CreateAutoBid{
		AuctionId: "a1", User: "bob", UserName: "bob", MaxAmount: domain.MustAmount("120"),
	})
	s.Require().NoError(err)

	// one announcement per accepted bid, manual and auto alike
	s.Equal(2, s.outboxRepo.count())
}

package usecase

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/query"
)

type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[domain.AuctionId]auction.Auction

	// failUpdates forces the next n updates to report a version race
	failUpdates int
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
	if f.failUpdates > 0 {
		f.failUpdates--
		return domain.ErrConcurrencyConflict
	}
	stored, ok := f.auctions[a.Id]
	if !ok || stored.Version != a.Version {
		return domain.ErrConcurrencyConflict
	}
	a.Version++
	a.UpdatedAt = time.Now()
	f.auctions[a.Id] = *a
	return nil
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
	return nil, nil
}

func (f *fakeOutboxRepo) MarkDispatched(c ctx.Ctx, id string) error { return nil }

func (f *fakeOutboxRepo) BumpAttempts(c ctx.Ctx, id string) error { return nil }

func (f *fakeOutboxRepo) byTopic(topic string) []outbox.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := []outbox.Event{}
	for i := range f.events {
		if f.events[i].Topic == topic {
			res = append(res, f.events[i])
		}
	}
	return res
}

type passQuery struct {
	query.Mongo
}

func (passQuery) RunWithTransaction(c ctx.Ctx, run func(ctx.Ctx) error) error {
	return run(c)
}

type auctionSuite struct {
	suite.Suite

	auctionRepo *fakeAuctionRepo
	outboxRepo  *fakeOutboxRepo
	uc          auction.UseCase
}

func TestAuctionSuite(t *testing.T) {
	suite.Run(t, new(auctionSuite))
}

func (s *auctionSuite) SetupTest() {
	s.auctionRepo = newFakeAuctionRepo()
	s.outboxRepo = &fakeOutboxRepo{}
	s.uc = New(&AuctionUseCaseCfg{
		AuctionRepo: s.auctionRepo,
		OutboxRepo:  s.outboxRepo,
		Query:       passQuery{},
	})
}

func (s *auctionSuite) liveAuction(id domain.AuctionId, buyNow string) *auction.Auction {
	a := &auction.Auction{
		Id:         id,
		Seller:     "seller",
		SellerName: "Seller",
		ItemTitle:  "vintage radio",
		Status:     auction.StatusLive,
		EndTime:    time.Now().Add(time.Hour),
	}
	if buyNow != "" {
		price := domain.MustAmount(buyNow)
		a.BuyNowPrice = &price
	}
	s.Require().NoError(s.uc.Create(ctx.Background(), a))
	return a
}

func (s *auctionSuite) TestCreateDefaultsAndDuplicates() {
	c := ctx.Background()

	a := &auction.Auction{Seller: "seller", ItemTitle: "lamp", EndTime: time.Now().Add(time.Hour)}
	s.Require().NoError(s.uc.Create(c, a))
	s.Require().NotEmpty(a.Id)
	s.Require().Equal(auction.StatusScheduled, a.Status)
	s.Require().EqualValues(1, a.Version)

	dup := &auction.Auction{Id: a.Id, Seller: "seller", ItemTitle: "lamp"}
	s.Require().Equal(domain.ErrAlreadyExists, s.uc.Create(c, dup))

	zero := domain.ZeroAmount
	bad := &auction.Auction{Seller: "seller", ItemTitle: "lamp", BuyNowPrice: &zero}
	s.Require().Equal(domain.ErrBadParamInput, s.uc.Create(c, bad))
}

func (s *auctionSuite) TestGetMissing() {
	_, err := s.uc.Get(ctx.Background(), "nope")
	s.Require().Equal(domain.ErrNotFound, err)
}

func (s *auctionSuite) TestReserveHoldsTheAuction() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	err := s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1",
		AuctionId:     "a1",
		Buyer:         "buyer",
	})
	s.Require().NoError(err)

	a, err := s.uc.Get(c, "a1")
	s.Require().NoError(err)
	s.Require().EqualValues("corr-1", a.ReservedBy)
	s.Require().NotNil(a.ReservedAt)
	s.Require().False(a.IsBuyNowAvailable())
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicAuctionReserved), 1)
}

func (s *auctionSuite) TestReserveDuplicateReemitsOutcome() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	msg := &buynow.ReserveAuctionForBuyNow{CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer"}
	s.Require().NoError(s.uc.ReserveForBuyNow(c, msg))
	versionAfterFirst := s.auctionRepo.auctions["a1"].Version

	s.Require().NoError(s.uc.ReserveForBuyNow(c, msg))
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicAuctionReserved), 2)
	s.Require().Equal(versionAfterFirst, s.auctionRepo.auctions["a1"].Version)
}

func (s *auctionSuite) TestReserveFailureReasons() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer",
	}))

	// a second correlation hits the standing reservation
	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-2", AuctionId: "a1", Buyer: "rival",
	}))
	s.Require().Equal(buynow.ReasonConflict, s.lastFailureReason())

	// an already purchased auction
	done := s.liveAuction("a2", "100")
	done.Status = auction.StatusFinished
	done.Winner = "someone"
	s.auctionRepo.auctions["a2"] = *done
	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-3", AuctionId: "a2", Buyer: "buyer",
	}))
	s.Require().Equal(buynow.ReasonPurchased, s.lastFailureReason())

	// an unknown auction
	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-4", AuctionId: "missing", Buyer: "buyer",
	}))
	s.Require().Equal(buynow.ReasonInvalid, s.lastFailureReason())
}

func (s *auctionSuite) lastFailureReason() buynow.FailureReason {
	events := s.outboxRepo.byTopic(buynow.TopicReservationFailed)
	s.Require().NotEmpty(events)
	msg := buynow.AuctionReservationFailed{}
	s.Require().NoError(json.Unmarshal(events[len(events)-1].Payload, &msg))
	return msg.Reason
}

func (s *auctionSuite) TestReserveRetriesThroughVersionRace() {
	c := ctx.Background()
	s.liveAuction("a1", "250")
	s.auctionRepo.failUpdates = 1

	err := s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer",
	})
	s.Require().NoError(err)
	s.Require().EqualValues("corr-1", s.auctionRepo.auctions["a1"].ReservedBy)
}

func (s *auctionSuite) TestCompleteRequiresTheReservation() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer",
	}))

	err := s.uc.CompleteBuyNow(c, &buynow.CompleteBuyNowAuction{
		CorrelationId: "corr-2", AuctionId: "a1", Winner: "rival", Price: domain.MustAmount("250"),
	})
	s.Require().Equal(domain.ErrInvalidState, err)

	s.Require().NoError(s.uc.CompleteBuyNow(c, &buynow.CompleteBuyNowAuction{
		CorrelationId: "corr-1", AuctionId: "a1", Winner: "buyer", WinnerName: "Buyer", Price: domain.MustAmount("250"),
	}))

	a, err := s.uc.Get(c, "a1")
	s.Require().NoError(err)
	s.Require().Equal(auction.StatusFinished, a.Status)
	s.Require().EqualValues("buyer", a.Winner)
	s.Require().True(a.HighestBid.Equal(domain.MustAmount("250")))
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicAuctionCompleted), 1)
}

func (s *auctionSuite) TestCompleteDuplicateReemitsOutcome() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer",
	}))
	msg := &buynow.CompleteBuyNowAuction{
		CorrelationId: "corr-1", AuctionId: "a1", Winner: "buyer", Price: domain.MustAmount("250"),
	}
	s.Require().NoError(s.uc.CompleteBuyNow(c, msg))
	versionAfterFirst := s.auctionRepo.auctions["a1"].Version

	s.Require().NoError(s.uc.CompleteBuyNow(c, msg))
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicAuctionCompleted), 2)
	s.Require().Equal(versionAfterFirst, s.auctionRepo.auctions["a1"].Version)
}

func (s *auctionSuite) TestReleaseClearsReservation() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer",
	}))
	s.Require().NoError(s.uc.ReleaseReservation(c, &buynow.ReleaseAuctionReservation{
		CorrelationId: "corr-1", AuctionId: "a1",
	}))

	a, err := s.uc.Get(c, "a1")
	s.Require().NoError(err)
	s.Require().Empty(a.ReservedBy)
	s.Require().Nil(a.ReservedAt)
	s.Require().True(a.IsBuyNowAvailable())
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicReservationReleased), 1)
}

func (s *auctionSuite) TestReleaseByNonHolderIsANoOp() {
	c := ctx.Background()
	s.liveAuction("a1", "250")

	s.Require().NoError(s.uc.ReserveForBuyNow(c, &buynow.ReserveAuctionForBuyNow{
		CorrelationId: "corr-1", AuctionId: "a1", Buyer: "buyer",
	}))
	s.Require().NoError(s.uc.ReleaseReservation(c, &buynow.ReleaseAuctionReservation{
		CorrelationId: "corr-2", AuctionId: "a1",
	}))

	a, err := s.uc.Get(c, "a1")
	s.Require().NoError(err)
	s.Require().EqualValues("corr-1", a.ReservedBy)
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicReservationReleased), 1)

	// missing auctions still report released so the saga can finish
	s.Require().NoError(s.uc.ReleaseReservation(c, &buynow.ReleaseAuctionReservation{
		CorrelationId: "corr-3", AuctionId: "missing",
	}))
	s.Require().Len(s.outboxRepo.byTopic(buynow.TopicReservationReleased), 2)
}

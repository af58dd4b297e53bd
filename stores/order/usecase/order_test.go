package usecase

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/order"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/query"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders []order.Order
}

func (f *fakeOrderRepo) Insert(c ctx.Ctx, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].CorrelationId == o.CorrelationId {
			return domain.ErrAlreadyExists
		}
	}
	f.orders = append(f.orders, *o)
	return nil
}

func (f *fakeOrderRepo) FindOne(c ctx.Ctx, id string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].Id == id {
			cp := f.orders[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeOrderRepo) FindByCorrelation(c ctx.Ctx, correlationId domain.CorrelationId) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].CorrelationId == correlationId {
			cp := f.orders[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeOrderRepo) UpdateStatus(c ctx.Ctx, correlationId domain.CorrelationId, status order.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].CorrelationId == correlationId {
			f.orders[i].Status = status
			f.orders[i].UpdatedAt = time.Now()
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

type orderSuite struct {
	suite.Suite

	orderRepo  *fakeOrderRepo
	outboxRepo *fakeOutboxRepo
	uc         order.UseCase
}

func TestOrderSuite(t *testing.T) {
	suite.Run(t, new(orderSuite))
}

func (s *orderSuite) SetupTest() {
	s.orderRepo = &fakeOrderRepo{}
	s.outboxRepo = &fakeOutboxRepo{}
	s.uc = New(&OrderUseCaseCfg{
		OrderRepo:  s.orderRepo,
		OutboxRepo: s.outboxRepo,
		Query:      passQuery{},
	})
}

func (s *orderSuite) cmd() *buynow.CreateBuyNowOrder {
	return &buynow.CreateBuyNowOrder{
		CorrelationId: "corr-1",
		AuctionId:     "a1",
		Buyer:         "buyer",
		BuyerName:     "Buyer",
		Seller:        "seller",
		SellerName:    "Seller",
		Price:         domain.MustAmount("250"),
		ItemTitle:     "vintage lens",
	}
}

func (s *orderSuite) TestCreateBuyNow() {
	c := ctx.Background()
	s.Require().NoError(s.uc.CreateBuyNow(c, s.cmd()))

	o, err := s.orderRepo.FindByCorrelation(c, "corr-1")
	s.Require().NoError(err)
	s.Equal(order.StatusPending, o.Status)
	s.True(o.Price.Equal(domain.MustAmount("250")))

	created := s.outboxRepo.byTopic(buynow.TopicOrderCreated)
	s.Require().Len(created, 1)
}

func (s *orderSuite) TestReplayedCommandReusesOrder() {
	c := ctx.Background()
	s.Require().NoError(s.uc.CreateBuyNow(c, s.cmd()))
	s.Require().NoError(s.uc.CreateBuyNow(c, s.cmd()))

	s.Len(s.orderRepo.orders, 1)

	created := s.outboxRepo.byTopic(buynow.TopicOrderCreated)
	s.Require().Len(created, 2)

	first := &buynow.BuyNowOrderCreated{}
	second := &buynow.BuyNowOrderCreated{}
	s.Require().NoError(json.Unmarshal(created[0].Payload, first))
	s.Require().NoError(json.Unmarshal(created[1].Payload, second))
	s.Equal(first.OrderId, second.OrderId)
}

func (s *orderSuite) TestMalformedCommandFails() {
	c := ctx.Background()
	cmd := s.cmd()
	cmd.Price = domain.ZeroAmount

	s.Require().NoError(s.uc.CreateBuyNow(c, cmd))
	s.Len(s.orderRepo.orders, 0)
	s.Len(s.outboxRepo.byTopic(buynow.TopicOrderCreationFailed), 1)
}

func (s *orderSuite) TestMarkCompletedAndCancelled() {
	c := ctx.Background()
	s.Require().NoError(s.uc.CreateBuyNow(c, s.cmd()))

	s.NoError(s.uc.MarkCompleted(c, "corr-1"))
	o, _ := s.orderRepo.FindByCorrelation(c, "corr-1")
	s.Equal(order.StatusCompleted, o.Status)

	s.NoError(s.uc.MarkCancelled(c, "corr-1"))
	o, _ = s.orderRepo.FindByCorrelation(c, "corr-1")
	s.Equal(order.StatusCancelled, o.Status)

	s.ErrorIs(s.uc.MarkCompleted(c, "missing"), domain.ErrNotFound)
}

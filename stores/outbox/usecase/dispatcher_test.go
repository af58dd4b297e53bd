package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/bus"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []outbox.Event

	// when set, MarkDispatched blocks until the channel is closed
	markGate chan struct{}
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
			if len(res) == limit {
				break
			}
		}
	}
	return res, nil
}

func (f *fakeOutboxRepo) MarkDispatched(c ctx.Ctx, id string) error {
	if f.markGate != nil {
		<-f.markGate
	}
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

func (f *fakeOutboxRepo) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := range f.events {
		if f.events[i].Status == outbox.StatusPending {
			n++
		}
	}
	return n
}

func (f *fakeOutboxRepo) attemptsOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].Id == id {
			return f.events[i].Attempts
		}
	}
	return 0
}

// collector records delivered correlation ids per partition key
type collector struct {
	mu       sync.Mutex
	received map[string][]domain.CorrelationId
}

func newCollector() *collector {
	return &collector{received: map[string][]domain.CorrelationId{}}
}

func (col *collector) handler(c ctx.Ctx, env *bus.Envelope) error {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.received[env.PartitionKey] = append(col.received[env.PartitionKey], env.CorrelationId)
	return nil
}

func (col *collector) forKey(key string) []domain.CorrelationId {
	col.mu.Lock()
	defer col.mu.Unlock()
	res := make([]domain.CorrelationId, len(col.received[key]))
	copy(res, col.received[key])
	return res
}

type dispatcherSuite struct {
	suite.Suite

	repo       *fakeOutboxRepo
	eventBus   bus.Bus
	dispatcher outbox.Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(dispatcherSuite))
}

func (s *dispatcherSuite) SetupTest() {
	s.repo = &fakeOutboxRepo{}
	s.eventBus = bus.NewMemory()
	s.dispatcher = NewDispatcher(&DispatcherCfg{
		OutboxRepo:   s.repo,
		Bus:          s.eventBus,
		PollInterval: tick,
	})
}

func (s *dispatcherSuite) TearDownTest() {
	s.dispatcher.Stop()
	s.eventBus.Close()
}

func (s *dispatcherSuite) appendEvent(topic, key string, correlationId domain.CorrelationId) *outbox.Event {
	evt, err := outbox.NewEvent(topic, key, correlationId, map[string]string{"key": key})
	s.Require().NoError(err)
	s.Require().NoError(s.repo.Insert(ctx.Background(), evt))
	return evt
}

func (s *dispatcherSuite) TestPublishesPendingAndMarksDispatched() {
	col := newCollector()
	s.eventBus.Subscribe("auction.events", col.handler)

	s.appendEvent("auction.events", "a1", "c1")
	s.appendEvent("auction.events", "a1", "c2")
	s.appendEvent("auction.events", "a1", "c3")

	s.dispatcher.Start(ctx.Background())

	s.Require().Eventually(func() bool {
		return len(col.forKey("a1")) == 3
	}, waitFor, tick)
	s.Require().Equal([]domain.CorrelationId{"c1", "c2", "c3"}, col.forKey("a1"))
	s.Require().Eventually(func() bool {
		return s.repo.pendingCount() == 0
	}, waitFor, tick)
}

func (s *dispatcherSuite) TestKeepsOrderPerPartitionKey() {
	col := newCollector()
	s.eventBus.Subscribe("auction.events", col.handler)

	s.appendEvent("auction.events", "a1", "a1-first")
	s.appendEvent("auction.events", "a2", "a2-first")
	s.appendEvent("auction.events", "a1", "a1-second")
	s.appendEvent("auction.events", "a2", "a2-second")

	s.dispatcher.Start(ctx.Background())

	s.Require().Eventually(func() bool {
		return len(col.forKey("a1")) == 2 && len(col.forKey("a2")) == 2
	}, waitFor, tick)
	s.Require().Equal([]domain.CorrelationId{"a1-first", "a1-second"}, col.forKey("a1"))
	s.Require().Equal([]domain.CorrelationId{"a2-first", "a2-second"}, col.forKey("a2"))
}

func (s *dispatcherSuite) TestStalledWritebackIsNotRepublished() {
	col := newCollector()
	s.eventBus.Subscribe("auction.events", col.handler)

	gate := make(chan struct{})
	s.repo.markGate = gate
	s.appendEvent("auction.events", "a1", "c1")

	s.dispatcher.Start(ctx.Background())

	s.Require().Eventually(func() bool {
		return len(col.forKey("a1")) == 1
	}, waitFor, tick)

	// the event stays pending while its group is stuck writing back; later
	// polls must not pick it up again
	time.Sleep(20 * tick)
	close(gate)

	s.Require().Eventually(func() bool {
		return s.repo.pendingCount() == 0
	}, waitFor, tick)
	time.Sleep(10 * tick)
	s.Require().Equal([]domain.CorrelationId{"c1"}, col.forKey("a1"))
}

func (s *dispatcherSuite) TestPublishFailureKeepsEventPending() {
	s.eventBus.Close()

	evt := s.appendEvent("auction.events", "a1", "c1")
	s.dispatcher.Start(ctx.Background())

	s.Require().Eventually(func() bool {
		return s.repo.attemptsOf(evt.Id) > 0
	}, waitFor, tick)
	s.Require().Equal(1, s.repo.pendingCount())
}

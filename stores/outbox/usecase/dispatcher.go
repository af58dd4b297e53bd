package usecase

import (
	"sync"
	"time"

	"github.com/viney-shih/goroutines"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/goroutine"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/bus"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultBatchSize    = 100
	poolSize            = 32
)

type DispatcherCfg struct {
	OutboxRepo   outbox.Repo
	Bus          bus.Bus
	PollInterval time.Duration
	BatchSize    int
}

type dispatcherImpl struct {
	outboxRepo   outbox.Repo
	bus          bus.Bus
	pollInterval time.Duration
	batchSize    int
	pool         *goroutines.Pool
	met          metrics.Service
	stop         chan struct{}
	done         chan struct{}

	// mu guards inFlight, the partition keys whose previous group is still
	// publishing. A slow group must not let the next poll re-send its events.
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewDispatcher(cfg *DispatcherCfg) outbox.Dispatcher {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	return &dispatcherImpl{
		outboxRepo:   cfg.OutboxRepo,
		bus:          cfg.Bus,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		pool:         goroutines.NewPool(poolSize),
		met:          metrics.New("outbox"),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		inFlight:     map[string]bool{},
	}
}

func (im *dispatcherImpl) Start(c ctx.Ctx) {
	goroutine.RecoverableGo(func() {
		defer close(im.done)
		ticker := time.NewTicker(im.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-im.stop:
				return
			case <-c.Done():
				return
			case <-ticker.C:
				im.dispatchBatch(c)
			}
		}
	})
}

func (im *dispatcherImpl) Stop() {
	close(im.stop)
	<-im.done
	im.pool.Release()
}

// dispatchBatch publishes pending events grouped by partition key, so the
// relative order of events sharing a key survives the parallel fan-out.
func (im *dispatcherImpl) dispatchBatch(c ctx.Ctx) {
	events, err := im.outboxRepo.FindPending(c, im.batchSize)
	if err != nil {
		c.WithField("err", err).Error("failed to outboxRepo.FindPending")
		return
	}
	if len(events) == 0 {
		return
	}

	groups := map[string][]outbox.Event{}
	order := []string{}
	for _, e := range events {
		if _, ok := groups[e.PartitionKey]; !ok {
			order = append(order, e.PartitionKey)
		}
		groups[e.PartitionKey] = append(groups[e.PartitionKey], e)
	}

	for _, key := range order {
		if !im.claim(key) {
			continue
		}
		key, group := key, groups[key]
		if err := im.pool.Schedule(func() {
			defer im.release(key)
			im.dispatchGroup(c, group)
		}); err != nil {
			im.release(key)
			c.WithField("err", err).Warn("failed to schedule dispatch")
		}
	}
}

func (im *dispatcherImpl) claim(key string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.inFlight[key] {
		return false
	}
	im.inFlight[key] = true
	return true
}

func (im *dispatcherImpl) release(key string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	delete(im.inFlight, key)
}

func (im *dispatcherImpl) dispatchGroup(c ctx.Ctx, events []outbox.Event) {
	for _, e := range events {
		if err := im.bus.Publish(c, e.Topic, e.PartitionKey, e.CorrelationId, e.Payload); err != nil {
			im.met.BumpSum("dispatch.err", 1, "topic", e.Topic)
			c.WithFields(log.Fields{
				"err":   err,
				"id":    e.Id,
				"topic": e.Topic,
			}).Error("failed to publish outbox event")
			if err := im.outboxRepo.BumpAttempts(c, e.Id); err != nil {
				c.WithField("err", err).Warn("failed to bump attempts")
			}
			// stop the group here to keep partition order
			return
		}
		if err := im.outboxRepo.MarkDispatched(c, e.Id); err != nil {
			c.WithFields(log.Fields{
				"err": err,
				"id":  e.Id,
			}).Warn("failed to mark dispatched, event will be re-published")
			return
		}
		im.met.BumpSum("dispatch", 1, "topic", e.Topic)
	}
}

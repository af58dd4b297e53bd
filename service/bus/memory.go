package bus

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/backoff"
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/goroutine"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain"
)

const (
	defaultShardCount   = 8
	defaultShardBuffer  = 1024
	defaultMaxAttempts  = 5
	retryInitialBackoff = 20 * time.Millisecond
	retryMaxBackoff     = 2 * time.Second
)

type memOptions struct {
	shardCount  int
	shardBuffer int
	maxAttempts int
}

// MemOption is functional parameter for the in memory bus
type MemOption func(*memOptions)

// WithShardCount sets the number of delivery goroutines.
func WithShardCount(n int) MemOption {
	return func(o *memOptions) {
		o.shardCount = n
	}
}

// WithMaxAttempts caps redeliveries before a message is dropped.
func WithMaxAttempts(n int) MemOption {
	return func(o *memOptions) {
		o.maxAttempts = n
	}
}

type memImpl struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	shards   []chan *Envelope
	opts     memOptions
	met      metrics.Service
	wg       sync.WaitGroup
	closed   bool

	// pubWg counts in-flight shard sends. Close must not close a shard
	// channel while a Publish that passed the closed check is still sending.
	pubWg sync.WaitGroup
}

// NewMemory builds an in process bus. Each shard owns one goroutine, so
// envelopes sharing a partition key never interleave.
func NewMemory(options ...MemOption) Bus {
	opts := memOptions{
		shardCount:  defaultShardCount,
		shardBuffer: defaultShardBuffer,
		maxAttempts: defaultMaxAttempts,
	}
	for _, option := range options {
		option(&opts)
	}

	im := &memImpl{
		handlers: map[string][]Handler{},
		shards:   make([]chan *Envelope, opts.shardCount),
		opts:     opts,
		met:      metrics.New("bus"),
	}

	for i := 0; i < opts.shardCount; i++ {
		shard := make(chan *Envelope, opts.shardBuffer)
		im.shards[i] = shard
		im.wg.Add(1)
		goroutine.RecoverableGo(func() {
			defer im.wg.Done()
			im.deliverLoop(shard)
		})
	}

	return im
}

func (im *memImpl) Publish(c ctx.Ctx, topic, partitionKey string, correlationId domain.CorrelationId, payload interface{}) error {
	env := &Envelope{
		MessageId:     uuid.NewString(),
		Topic:         topic,
		PartitionKey:  partitionKey,
		CorrelationId: correlationId,
		Attempt:       0,
		PublishedAt:   time.Now(),
	}

	switch p := payload.(type) {
	case []byte:
		env.Payload = p
	default:
		data, err := marshalPayload(payload)
		if err != nil {
			c.WithFields(log.Fields{"err": err, "topic": topic}).Error("failed to marshal payload")
			return err
		}
		env.Payload = data
	}

	im.mu.RLock()
	if im.closed {
		im.mu.RUnlock()
		return ErrClosed
	}
	im.pubWg.Add(1)
	im.mu.RUnlock()
	defer im.pubWg.Done()

	im.met.BumpSum("publish", 1, "topic", topic)
	im.shardOf(partitionKey) <- env
	return nil
}

func (im *memImpl) Subscribe(topic string, handler Handler) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.handlers[topic] = append(im.handlers[topic], handler)
}

func (im *memImpl) Close() {
	im.mu.Lock()
	if im.closed {
		im.mu.Unlock()
		return
	}
	im.closed = true
	im.mu.Unlock()

	im.pubWg.Wait()
	for _, shard := range im.shards {
		close(shard)
	}
	im.wg.Wait()
}

func (im *memImpl) shardOf(partitionKey string) chan *Envelope {
	h := fnv.New32a()
	h.Write([]byte(partitionKey))
	return im.shards[h.Sum32()%uint32(len(im.shards))]
}

func (im *memImpl) deliverLoop(shard chan *Envelope) {
	c := ctx.Background()
	for env := range shard {
		im.deliver(c, env)
	}
}

// deliver retries failed handlers inline so later envelopes on the same
// partition key cannot overtake this one.
func (im *memImpl) deliver(c ctx.Ctx, env *Envelope) {
	im.mu.RLock()
	handlers := im.handlers[env.Topic]
	im.mu.RUnlock()

	for _, handler := range handlers {
		bo := backoff.NewExponential(retryInitialBackoff, retryMaxBackoff)
		for attempt := 1; ; attempt++ {
			env.Attempt = attempt
			err := handler(c, env)
			if err == nil {
				break
			}
			im.met.BumpSum("deliver.err", 1, "topic", env.Topic)
			c.WithFields(log.Fields{
				"err":           err,
				"topic":         env.Topic,
				"messageId":     env.MessageId,
				"correlationId": env.CorrelationId,
				"attempt":       attempt,
			}).Warn("handler failed, will redeliver")

			if attempt >= im.opts.maxAttempts {
				im.met.BumpSum("deliver.dropped", 1, "topic", env.Topic)
				c.WithFields(log.Fields{
					"topic":     env.Topic,
					"messageId": env.MessageId,
				}).Error("dropping message after max attempts")
				break
			}
			if err := bo.Backoff(c); err != nil {
				return
			}
		}
	}
}

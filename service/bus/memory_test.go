package bus

import (
	"errors"
	"hash/fnv"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
)

type memBusSuite struct {
	suite.Suite

	bus Bus
}

func TestMemBusSuite(t *testing.T) {
	suite.Run(t, new(memBusSuite))
}

func (s *memBusSuite) SetupTest() {
	s.bus = NewMemory(WithMaxAttempts(3))
}

func (s *memBusSuite) TearDownTest() {
	s.bus.Close()
}

type payload struct {
	Seq int `json:"seq"`
}

func (s *memBusSuite) TestDeliversToSubscriber() {
	c := ctx.Background()

	var mu sync.Mutex
	var got []int
	s.bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		var p payload
		s.NoError(env.Decode(&p))
		mu.Lock()
		got = append(got, p.Seq)
		mu.Unlock()
		return nil
	})

	s.NoError(s.bus.Publish(c, "topic.a", "k1", "corr-1", payload{Seq: 1}))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *memBusSuite) TestOrderingPerPartitionKey() {
	c := ctx.Background()

	var mu sync.Mutex
	var got []int
	s.bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		var p payload
		s.NoError(env.Decode(&p))
		mu.Lock()
		got = append(got, p.Seq)
		mu.Unlock()
		return nil
	})

	for i := 0; i < 100; i++ {
		s.NoError(s.bus.Publish(c, "topic.a", "same-key", "corr-1", payload{Seq: i}))
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		s.Equal(i, seq)
	}
}

func (s *memBusSuite) TestRedeliversOnHandlerError() {
	c := ctx.Background()

	var mu sync.Mutex
	attempts := 0
	s.bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	s.NoError(s.bus.Publish(c, "topic.a", "k1", "corr-1", payload{Seq: 1}))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *memBusSuite) TestDropsAfterMaxAttempts() {
	c := ctx.Background()

	var mu sync.Mutex
	attempts := 0
	done := false
	s.bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("permanent")
	})
	s.bus.Subscribe("topic.b", func(c ctx.Ctx, env *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		done = true
		return nil
	})

	s.NoError(s.bus.Publish(c, "topic.a", "k1", "corr-1", payload{Seq: 1}))
	s.NoError(s.bus.Publish(c, "topic.b", "k1", "corr-1", payload{Seq: 2}))

	// the poisoned message gives up and the next one on the shard flows
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	}, 10*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal(3, attempts)
}

func (s *memBusSuite) TestFanOutToMultipleSubscribers() {
	c := ctx.Background()

	var mu sync.Mutex
	first, second := 0, 0
	s.bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		first++
		return nil
	})
	s.bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		second++
		return nil
	})

	s.NoError(s.bus.Publish(c, "topic.a", "k1", "corr-1", payload{Seq: 1}))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return first == 1 && second == 1
	}, time.Second, 10*time.Millisecond)
}

func (s *memBusSuite) TestPublishRacingCloseNeverPanics() {
	c := ctx.Background()

	bus := NewMemory()
	bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error { return nil })

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				// either the send lands or the bus reports closed
				err := bus.Publish(c, "topic.a", "k1", "corr-1", payload{Seq: i})
				if err != nil {
					s.ErrorIs(err, ErrClosed)
					return
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	bus.Close()
	wg.Wait()
}

func TestShardOfStaysInRange(t *testing.T) {
	im := NewMemory().(*memImpl)
	defer im.Close()

	sawHighBit := false
	for i := 0; i < 1000; i++ {
		key := "auction-" + strconv.Itoa(i)
		h := fnv.New32a()
		h.Write([]byte(key))
		if h.Sum32() > math.MaxInt32 {
			sawHighBit = true
		}
		require.NotNil(t, im.shardOf(key))
	}
	// hashes above MaxInt32 are the ones int conversion would turn negative
	require.True(t, sawHighBit)
}

func (s *memBusSuite) TestPublishAfterCloseFails() {
	c := ctx.Background()

	bus := NewMemory()
	bus.Close()
	err := bus.Publish(c, "topic.a", "k1", "corr-1", payload{Seq: 1})
	require.ErrorIs(s.T(), err, ErrClosed)
}

func TestEnvelopeDecode(t *testing.T) {
	c := ctx.Background()

	bus := NewMemory()
	defer bus.Close()

	done := make(chan Envelope, 1)
	bus.Subscribe("topic.a", func(c ctx.Ctx, env *Envelope) error {
		done <- *env
		return nil
	})

	require.NoError(t, bus.Publish(c, "topic.a", "k1", domain.CorrelationId("corr-9"), payload{Seq: 42}))

	select {
	case env := <-done:
		require.Equal(t, "topic.a", env.Topic)
		require.Equal(t, domain.CorrelationId("corr-9"), env.CorrelationId)
		var p payload
		require.NoError(t, env.Decode(&p))
		require.Equal(t, 42, p.Seq)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

package usecase

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/goroutine"
	"github.com/bidhaus/goapi/domain/buynow"
)

const defaultSweepInterval = time.Second

type SweeperCfg struct {
	Coordinator buynow.Coordinator
	Interval    time.Duration
	Clock       clock.Clock
}

// Sweeper periodically times out sagas past their deadline.
type Sweeper struct {
	coordinator buynow.Coordinator
	interval    time.Duration
	clock       clock.Clock
	stop        chan struct{}
	done        chan struct{}
}

func NewSweeper(cfg *SweeperCfg) *Sweeper {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultSweepInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Sweeper{
		coordinator: cfg.Coordinator,
		interval:    interval,
		clock:       clk,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (s *Sweeper) Start(c ctx.Ctx) {
	goroutine.RecoverableGo(func() {
		defer close(s.done)
		ticker := s.clock.Ticker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-c.Done():
				return
			case now := <-ticker.C:
				if err := s.coordinator.SweepExpired(c, now); err != nil {
					c.WithField("err", err).Error("failed to sweep expired sagas")
				}
			}
		}
	})
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

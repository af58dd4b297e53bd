package repository

import (
	"sync"
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
)

// stateRepoImpl keeps in-flight saga state in process memory. Saga state
// is scoped to the coordinator instance that started it; a coordinator
// restart abandons its sagas and the auction-side reservation is cleaned
// up by ttl expiry of the buy-now lock plus the reservation release sweep.
type stateRepoImpl struct {
	mu     sync.Mutex
	states map[domain.CorrelationId]buynow.State
}

func NewStateRepo() buynow.StateRepo {
	return &stateRepoImpl{states: map[domain.CorrelationId]buynow.State{}}
}

func (im *stateRepoImpl) Create(c ctx.Ctx, s *buynow.State) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, ok := im.states[s.CorrelationId]; ok {
		return domain.ErrAlreadyExists
	}
	im.states[s.CorrelationId] = *s
	return nil
}

func (im *stateRepoImpl) Get(c ctx.Ctx, id domain.CorrelationId) (*buynow.State, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	s, ok := im.states[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (im *stateRepoImpl) Update(c ctx.Ctx, s *buynow.State) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, ok := im.states[s.CorrelationId]; !ok {
		return domain.ErrNotFound
	}
	s.UpdatedAt = time.Now()
	im.states[s.CorrelationId] = *s
	return nil
}

func (im *stateRepoImpl) Delete(c ctx.Ctx, id domain.CorrelationId) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	delete(im.states, id)
	return nil
}

func (im *stateRepoImpl) FindExpired(c ctx.Ctx, now time.Time) ([]*buynow.State, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	res := []*buynow.State{}
	for _, s := range im.states {
		if !s.Step.IsTerminal() && now.After(s.Deadline) {
			cp := s
			res = append(res, &cp)
		}
	}
	return res, nil
}

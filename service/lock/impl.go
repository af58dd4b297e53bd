package lock

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/backoff"
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/keys"
	"github.com/bidhaus/goapi/service/redis"
)

const (
	retryInitialInterval = 50 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
)

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// extendScript refreshes the expiry only when the caller still owns the key.
var extendScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

type impl struct {
	redis redis.Service
	met   metrics.Service
}

func New(redisService redis.Service) Service {
	return &impl{
		redis: redisService,
		met:   metrics.New("lock"),
	}
}

func (im *impl) TryAcquire(c ctx.Ctx, key string, ttl time.Duration) (Handle, error) {
	tags := []string{"prefix", keys.GetPrefix(key)}
	defer im.met.BumpTime("acquire.time", tags...).End()

	token := uuid.NewString()
	if err := im.redis.SetNX(c, key, []byte(token), ttl); err != nil {
		if err == redis.ErrNotFound {
			im.met.BumpSum("acquire.busy", 1, tags...)
			return nil, domain.ErrLockBusy
		}
		c.WithField("err", err).Error("failed to acquire lock")
		return nil, err
	}

	return &handle{key: key, token: token, redis: im.redis, met: im.met}, nil
}

func (im *impl) Acquire(c ctx.Ctx, key string, ttl, wait time.Duration) (Handle, error) {
	deadline := time.Now().Add(wait)
	bo := backoff.NewExponential(retryInitialInterval, retryMaxInterval)

	for {
		hdl, err := im.TryAcquire(c, key, ttl)
		if err == nil {
			return hdl, nil
		}
		if err != domain.ErrLockBusy {
			return nil, err
		}
		if time.Now().After(deadline) {
			im.met.BumpSum("acquire.timeout", 1, "prefix", keys.GetPrefix(key))
			return nil, domain.ErrLockTimeout
		}
		if err := bo.Backoff(c); err != nil {
			return nil, err
		}
	}
}

func (im *impl) WithLock(c ctx.Ctx, key string, ttl, wait time.Duration, fn func(c ctx.Ctx) error) error {
	hdl, err := im.Acquire(c, key, ttl, wait)
	if err != nil {
		return err
	}
	defer func() {
		if err := hdl.Release(c); err != nil && err != ErrNotHeld {
			c.WithFields(log.Fields{"err": err, "key": key}).Warn("failed to release lock")
		}
	}()
	return fn(c)
}

type handle struct {
	key   string
	token string
	redis redis.Service
	met   metrics.Service
}

func (h *handle) Key() string {
	return h.key
}

func (h *handle) Extend(c ctx.Ctx, ttl time.Duration) error {
	res, err := h.redis.ScriptDo(c, extendScript, h.key, h.token, int64(ttl/time.Millisecond))
	if err != nil {
		c.WithFields(log.Fields{"err": err, "key": h.key}).Error("failed to extend lock")
		return err
	}
	if n, ok := res.(int64); !ok || n == 0 {
		h.met.BumpSum("extend.lost", 1, "prefix", keys.GetPrefix(h.key))
		return ErrNotHeld
	}
	return nil
}

func (h *handle) Release(c ctx.Ctx) error {
	res, err := h.redis.ScriptDo(c, releaseScript, h.key, h.token)
	if err != nil {
		c.WithFields(log.Fields{"err": err, "key": h.key}).Error("failed to release lock")
		return err
	}
	if n, ok := res.(int64); !ok || n == 0 {
		// already expired or taken over, releasing twice is fine
		return nil
	}
	return nil
}

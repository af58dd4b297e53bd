package redis

import (
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/bidhaus/goapi/base/ctx"
)

// Forever means the key has no associated expire
const Forever = time.Duration(-1)

var (
	// ErrNotFound is returned when the key does not exist
	ErrNotFound = redis.ErrNil
	// ErrNoTTL is returned by TTL when the key exists but has no expire
	ErrNoTTL = errors.New("redis key has no ttl")
	// ErrExpireNotExistOrTimeout is returned by Expire when the key is gone
	// or the timeout could not be set
	ErrExpireNotExistOrTimeout = errors.New("redis key does not exist or timeout not set")
	// ErrPoolExhausted is returned when no pool is available for the command
	ErrPoolExhausted = errors.New("redis pool unavailable")
)

// Service provides interface for redis operations
type Service interface {
	Get(c ctx.Ctx, key string) ([]byte, error)
	Set(c ctx.Ctx, key string, val []byte, expire time.Duration) error
	// SetNX sets key only when absent. It returns ErrNotFound when the key
	// is already held by someone else.
	SetNX(c ctx.Ctx, key string, val []byte, expire time.Duration) error
	Del(c ctx.Ctx, ks ...string) (int, error)
	Expire(c ctx.Ctx, key string, ttl time.Duration) error
	Exists(c ctx.Ctx, key string) (bool, error)
	TTL(c ctx.Ctx, key string) (int, error)
	Incr(c ctx.Ctx, key string) (int64, error)
	ScriptDo(c ctx.Ctx, hdl *ScriptHdl, keysAndArgs ...interface{}) (interface{}, error)
	GetConn() (redis.Conn, error)
	Name() string
}

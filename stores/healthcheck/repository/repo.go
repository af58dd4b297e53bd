package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/database/mongoclient"
	hcdomain "github.com/bidhaus/goapi/domain/healthcheck"
	"github.com/bidhaus/goapi/domain/keys"
	"github.com/bidhaus/goapi/service/redis"
)

type impl struct {
	mgoClient  *mongoclient.Client
	redisCache redis.Service
}

// New creates the probe over the mongo client and the redis cache
func New(
	mgoClient *mongoclient.Client,
	redisCache redis.Service,
) hcdomain.HealthCheckRepo {
	return &impl{
		mgoClient:  mgoClient,
		redisCache: redisCache,
	}
}

func (im *impl) PingDB(c ctx.Ctx) error {
	probe, cancel := ctx.WithTimeout(c, 2*time.Second)
	defer cancel()
	if err := im.mgoClient.Ping(probe, readpref.Primary()); err != nil {
		c.WithField("err", err).Error("failed to ping mongo")
		return err
	}

	if err := im.redisCache.Set(probe, keys.RedisKey(keys.PfxHealthCheck, "probe"), []byte("1"), 30*time.Second); err != nil {
		c.WithField("err", err).Error("failed to write redis probe key")
		return err
	}
	return nil
}

package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/query"
)

type outboxRepoImpl struct {
	q query.Mongo
}

func NewOutboxRepo(q query.Mongo) outbox.Repo {
	return &outboxRepoImpl{q}
}

func (im *outboxRepoImpl) Insert(c ctx.Ctx, e *outbox.Event) error {
	if err := im.q.Insert(c, domain.TableOutboxEvents, e); err != nil {
		c.WithFields(log.Fields{
			"err":   err,
			"topic": e.Topic,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *outboxRepoImpl) FindPending(c ctx.Ctx, limit int) ([]outbox.Event, error) {
	res := []outbox.Event{}
	selector := bson.M{"status": outbox.StatusPending}
	if err := im.q.Search(c, domain.TableOutboxEvents, 0, limit, "createdAt", selector, &res); err != nil {
		c.WithFields(log.Fields{
			"err": err,
		}).Error("failed to q.Search")
		return nil, err
	}
	return res, nil
}

func (im *outboxRepoImpl) MarkDispatched(c ctx.Ctx, id string) error {
	now := time.Now()
	update := bson.M{
		"status":       outbox.StatusDispatched,
		"dispatchedAt": now,
	}
	if err := im.q.Patch(c, domain.TableOutboxEvents, bson.M{"id": id}, update); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to q.Patch")
		return err
	}
	return nil
}

func (im *outboxRepoImpl) BumpAttempts(c ctx.Ctx, id string) error {
	res := &outbox.Event{}
	if err := im.q.Increment(c, domain.TableOutboxEvents, bson.M{"id": id}, res, "attempts", 1); err != nil {
		c.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to q.Increment")
		return err
	}
	return nil
}

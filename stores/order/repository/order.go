package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/order"
	"github.com/bidhaus/goapi/service/query"
)

type orderRepoImpl struct {
	q query.Mongo
}

// NewOrderRepo expects a unique index on correlationId so a replayed
// create command cannot produce a second order.
func NewOrderRepo(q query.Mongo) order.Repo {
	return &orderRepoImpl{q}
}

func (im *orderRepoImpl) Insert(c ctx.Ctx, o *order.Order) error {
	if err := im.q.Insert(c, domain.TableOrders, o); err != nil {
		if err == query.ErrDuplicateKey {
			return domain.ErrAlreadyExists
		}
		c.WithFields(log.Fields{
			"err":     err,
			"orderId": o.Id,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *orderRepoImpl) FindOne(c ctx.Ctx, id string) (*order.Order, error) {
	res := &order.Order{}
	if err := im.q.FindOne(c, domain.TableOrders, bson.M{"id": id}, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":     err,
			"orderId": id,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *orderRepoImpl) UpdateStatus(c ctx.Ctx, correlationId domain.CorrelationId, status order.Status) error {
	selector := bson.M{"correlationId": correlationId}
	updater := bson.M{
		"status":    status,
		"updatedAt": time.Now(),
	}
	if err := im.q.Patch(c, domain.TableOrders, selector, updater); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":           err,
			"correlationId": correlationId,
		}).Error("failed to q.Patch")
		return err
	}
	return nil
}

func (im *orderRepoImpl) FindByCorrelation(c ctx.Ctx, correlationId domain.CorrelationId) (*order.Order, error) {
	res := &order.Order{}
	if err := im.q.FindOne(c, domain.TableOrders, bson.M{"correlationId": correlationId}, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":           err,
			"correlationId": correlationId,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

package repository

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/bid"
	"github.com/bidhaus/goapi/service/query"
)

type bidRepoImpl struct {
	q query.Mongo
}

func NewBidRepo(q query.Mongo) bid.Repo {
	return &bidRepoImpl{q}
}

func (im *bidRepoImpl) Insert(c ctx.Ctx, b *bid.Bid) error {
	if err := im.q.Insert(c, domain.TableBids, b); err != nil {
		if err == query.ErrDuplicateKey {
			return domain.ErrAlreadyExists
		}
		c.WithFields(log.Fields{
			"err":   err,
			"bidId": b.Id,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *bidRepoImpl) FindOne(c ctx.Ctx, id string) (*bid.Bid, error) {
	res := &bid.Bid{}
	if err := im.q.FindOne(c, domain.TableBids, bson.M{"id": id}, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":   err,
			"bidId": id,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *bidRepoImpl) FindAllAccepted(c ctx.Ctx, auctionId domain.AuctionId) ([]bid.Bid, error) {
	res := []bid.Bid{}
	selector := bson.M{
		"auctionId": auctionId,
		"status":    bid.StatusAccepted,
	}
	if err := im.q.Search(c, domain.TableBids, 0, 0, "-placedAt", selector, &res); err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
		}).Error("failed to q.Search")
		return nil, err
	}
	return res, nil
}

func (im *bidRepoImpl) FindByIdempotencyKey(c ctx.Ctx, auctionId domain.AuctionId, key string) (*bid.Bid, error) {
	res := &bid.Bid{}
	selector := bson.M{
		"auctionId":      auctionId,
		"idempotencyKey": key,
	}
	if err := im.q.FindOne(c, domain.TableBids, selector, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *bidRepoImpl) UpdateStatus(c ctx.Ctx, id string, status bid.Status, reason string) error {
	updater := bson.M{
		"status":       status,
		"rejectReason": reason,
	}
	if err := im.q.Patch(c, domain.TableBids, bson.M{"id": id}, updater); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":   err,
			"bidId": id,
		}).Error("failed to q.Patch")
		return err
	}
	return nil
}

package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/bid"
	"github.com/bidhaus/goapi/service/query"
)

type autoBidRepoImpl struct {
	q query.Mongo
}

func NewAutoBidRepo(q query.Mongo) bid.AutoBidRepo {
	return &autoBidRepoImpl{q}
}

func (im *autoBidRepoImpl) Insert(c ctx.Ctx, a *bid.AutoBid) error {
	if err := im.q.Insert(c, domain.TableAutoBids, a); err != nil {
		if err == query.ErrDuplicateKey {
			return domain.ErrAlreadyExists
		}
		c.WithFields(log.Fields{
			"err":       err,
			"autoBidId": a.Id,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *autoBidRepoImpl) FindOne(c ctx.Ctx, id string) (*bid.AutoBid, error) {
	res := &bid.AutoBid{}
	if err := im.q.FindOne(c, domain.TableAutoBids, bson.M{"id": id}, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":       err,
			"autoBidId": id,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *autoBidRepoImpl) FindActiveByAuction(c ctx.Ctx, auctionId domain.AuctionId) ([]bid.AutoBid, error) {
	res := []bid.AutoBid{}
	selector := bson.M{
		"auctionId": auctionId,
		"isActive":  true,
	}
	if err := im.q.Search(c, domain.TableAutoBids, 0, 0, "createdAt", selector, &res); err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
		}).Error("failed to q.Search")
		return nil, err
	}
	return res, nil
}

func (im *autoBidRepoImpl) FindActiveByAuctionAndUser(c ctx.Ctx, auctionId domain.AuctionId, user domain.UserId) (*bid.AutoBid, error) {
	res := &bid.AutoBid{}
	selector := bson.M{
		"auctionId": auctionId,
		"user":      user,
		"isActive":  true,
	}
	if err := im.q.FindOne(c, domain.TableAutoBids, selector, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
			"user":      user,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *autoBidRepoImpl) Update(c ctx.Ctx, a *bid.AutoBid) error {
	a.UpdatedAt = time.Now()
	if err := im.q.Replace(c, domain.TableAutoBids, bson.M{"id": a.Id}, a); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":       err,
			"autoBidId": a.Id,
		}).Error("failed to q.Replace")
		return err
	}
	return nil
}

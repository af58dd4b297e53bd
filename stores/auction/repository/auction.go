package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/service/query"
)

type auctionRepoImpl struct {
	q query.Mongo
}

func NewAuctionRepo(q query.Mongo) auction.Repo {
	return &auctionRepoImpl{q}
}

func (im *auctionRepoImpl) FindOne(c ctx.Ctx, id domain.AuctionId) (*auction.Auction, error) {
	res := &auction.Auction{}
	if err := im.q.FindOne(c, domain.TableAuctions, bson.M{"auctionId": id}, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": id,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *auctionRepoImpl) Insert(c ctx.Ctx, a *auction.Auction) error {
	if err := im.q.Insert(c, domain.TableAuctions, a); err != nil {
		if err == query.ErrDuplicateKey {
			return domain.ErrAlreadyExists
		}
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": a.Id,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

// Update replaces the document selected by id and the version the caller
// loaded. Zero matches means another writer got there first.
func (im *auctionRepoImpl) Update(c ctx.Ctx, a *auction.Auction) error {
	selector := bson.M{
		"auctionId": a.Id,
		"version":   a.Version,
	}

	loaded := a.Version
	a.Version = loaded + 1
	a.UpdatedAt = time.Now()

	if err := im.q.Replace(c, domain.TableAuctions, selector, a); err != nil {
		a.Version = loaded
		if err == query.ErrNotFound {
			return domain.ErrConcurrencyConflict
		}
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": a.Id,
			"version":   loaded,
		}).Error("failed to q.Replace")
		return err
	}
	return nil
}

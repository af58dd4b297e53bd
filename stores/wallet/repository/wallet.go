package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/wallet"
	"github.com/bidhaus/goapi/service/query"
)

type walletRepoImpl struct {
	q query.Mongo
}

func NewWalletRepo(q query.Mongo) wallet.Repo {
	return &walletRepoImpl{q}
}

func (im *walletRepoImpl) FindOne(c ctx.Ctx, userId domain.UserId) (*wallet.Wallet, error) {
	res := &wallet.Wallet{}
	if err := im.q.FindOne(c, domain.TableWallets, bson.M{"userId": userId}, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":    err,
			"userId": userId,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *walletRepoImpl) Insert(c ctx.Ctx, w *wallet.Wallet) error {
	if err := im.q.Insert(c, domain.TableWallets, w); err != nil {
		if err == query.ErrDuplicateKey {
			return domain.ErrAlreadyExists
		}
		c.WithFields(log.Fields{
			"err":    err,
			"userId": w.UserId,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *walletRepoImpl) Update(c ctx.Ctx, w *wallet.Wallet) error {
	selector := bson.M{
		"userId":  w.UserId,
		"version": w.Version,
	}

	loaded := w.Version
	w.Version = loaded + 1
	w.UpdatedAt = time.Now()

	if err := im.q.Replace(c, domain.TableWallets, selector, w); err != nil {
		w.Version = loaded
		if err == query.ErrNotFound {
			return domain.ErrConcurrencyConflict
		}
		c.WithFields(log.Fields{
			"err":     err,
			"userId":  w.UserId,
			"version": loaded,
		}).Error("failed to q.Replace")
		return err
	}
	return nil
}

package repository

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/wallet"
	"github.com/bidhaus/goapi/service/query"
)

type transactionRepoImpl struct {
	q query.Mongo
}

func NewTransactionRepo(q query.Mongo) wallet.TransactionRepo {
	return &transactionRepoImpl{q}
}

func (im *transactionRepoImpl) Insert(c ctx.Ctx, tx *wallet.Transaction) error {
	if err := im.q.Insert(c, domain.TableWalletTransactions, tx); err != nil {
		if err == query.ErrDuplicateKey {
			return domain.ErrAlreadyExists
		}
		c.WithFields(log.Fields{
			"err": err,
			"id":  tx.Id,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *transactionRepoImpl) FindByReference(c ctx.Ctx, referenceId, referenceType string) (*wallet.Transaction, error) {
	res := &wallet.Transaction{}
	selector := bson.M{
		"referenceId":   referenceId,
		"referenceType": referenceType,
	}
	if err := im.q.FindOne(c, domain.TableWalletTransactions, selector, res); err != nil {
		if err == query.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		c.WithFields(log.Fields{
			"err":         err,
			"referenceId": referenceId,
		}).Error("failed to q.FindOne")
		return nil, err
	}
	return res, nil
}

func (im *transactionRepoImpl) FindByUser(c ctx.Ctx, userId domain.UserId, limit int) ([]wallet.Transaction, error) {
	res := []wallet.Transaction{}
	if err := im.q.Search(c, domain.TableWalletTransactions, 0, limit, "-createdAt", bson.M{"userId": userId}, &res); err != nil {
		c.WithFields(log.Fields{
			"err":    err,
			"userId": userId,
		}).Error("failed to q.Search")
		return nil, err
	}
	return res, nil
}

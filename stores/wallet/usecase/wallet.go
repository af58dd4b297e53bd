package usecase

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/keys"
	"github.com/bidhaus/goapi/domain/wallet"
	"github.com/bidhaus/goapi/service/lock"
	"github.com/bidhaus/goapi/service/query"
)

const (
	lockTTL  = 30 * time.Second
	lockWait = 5 * time.Second
)

type WalletUseCaseCfg struct {
	WalletRepo      wallet.Repo
	TransactionRepo wallet.TransactionRepo
	Lock            lock.Service
	Query           query.Mongo
}

type impl struct {
	walletRepo wallet.Repo
	txRepo     wallet.TransactionRepo
	lock       lock.Service
	q          query.Mongo
	met        metrics.Service
}

func New(cfg *WalletUseCaseCfg) wallet.UseCase {
	return &impl{
		walletRepo: cfg.WalletRepo,
		txRepo:     cfg.TransactionRepo,
		lock:       cfg.Lock,
		q:          cfg.Query,
		met:        metrics.New("wallet"),
	}
}

func (im *impl) Get(c ctx.Ctx, userId domain.UserId) (*wallet.Wallet, error) {
	return im.walletRepo.FindOne(c, userId)
}

func (im *impl) Create(c ctx.Ctx, userId domain.UserId, initial domain.Amount) (*wallet.Wallet, error) {
	if initial.IsNegative() {
		return nil, domain.ErrBadParamInput
	}
	now := time.Now()
	w := &wallet.Wallet{
		UserId:     userId,
		Balance:    initial,
		HeldAmount: domain.ZeroAmount,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := im.walletRepo.Insert(c, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (im *impl) Transactions(c ctx.Ctx, userId domain.UserId, limit int) ([]wallet.Transaction, error) {
	return im.txRepo.FindByUser(c, userId, limit)
}

func (im *impl) HoldFunds(c ctx.Ctx, p *wallet.HoldFunds) error {
	if !p.Amount.IsPositive() {
		return domain.ErrBadParamInput
	}
	return im.withWalletLock(c, p.UserId, func(c ctx.Ctx) error {
		w, err := im.walletRepo.FindOne(c, p.UserId)
		if err != nil {
			return err
		}
		if w.AvailableBalance().LessThan(p.Amount) {
			im.met.BumpSum("hold.insufficient", 1)
			return domain.ErrInsufficientFunds
		}

		w.HeldAmount = w.HeldAmount.Plus(p.Amount)
		tx := im.newTransaction(w, wallet.TxTypeHold, p.Amount.Neg(), p.ReferenceId, p.ReferenceType)
		return im.commit(c, w, tx)
	})
}

func (im *impl) ReleaseFunds(c ctx.Ctx, p *wallet.ReleaseFunds) error {
	if !p.Amount.IsPositive() {
		return domain.ErrBadParamInput
	}
	return im.withWalletLock(c, p.UserId, func(c ctx.Ctx) error {
		w, err := im.walletRepo.FindOne(c, p.UserId)
		if err != nil {
			return err
		}
		if w.HeldAmount.LessThan(p.Amount) {
			return domain.ErrInvalidState
		}

		w.HeldAmount = w.HeldAmount.Minus(p.Amount)
		tx := im.newTransaction(w, wallet.TxTypeRelease, p.Amount, p.ReferenceId, p.ReferenceType)
		return im.commit(c, w, tx)
	})
}

func (im *impl) Withdraw(c ctx.Ctx, p *wallet.Withdraw) error {
	if !p.Amount.IsPositive() {
		return domain.ErrBadParamInput
	}
	return im.withWalletLock(c, p.UserId, func(c ctx.Ctx) error {
		w, err := im.walletRepo.FindOne(c, p.UserId)
		if err != nil {
			return err
		}
		if w.AvailableBalance().LessThan(p.Amount) {
			im.met.BumpSum("withdraw.insufficient", 1)
			return domain.ErrInsufficientFunds
		}

		w.Balance = w.Balance.Minus(p.Amount)
		tx := im.newTransaction(w, wallet.TxTypeWithdrawal, p.Amount.Neg(), uuid.NewString(), wallet.ReferenceTypeWithdrawal)
		return im.commit(c, w, tx)
	})
}

// ProcessPayment moves funds between two wallets. It is driven by bus
// events delivered at least once, so it first checks whether the reference
// was already settled and declines to apply it twice.
func (im *impl) ProcessPayment(c ctx.Ctx, p *wallet.ProcessPayment) error {
	if !p.Amount.IsPositive() || p.Payer == p.Payee {
		return domain.ErrBadParamInput
	}

	if _, err := im.txRepo.FindByReference(c, p.ReferenceId, p.ReferenceType); err == nil {
		im.met.BumpSum("payment.duplicate", 1)
		c.WithFields(log.Fields{
			"referenceId": p.ReferenceId,
			"payer":       p.Payer,
		}).Info("payment already settled, skipping")
		return nil
	} else if err != domain.ErrNotFound {
		return err
	}

	return im.withWalletLocks(c, []domain.UserId{p.Payer, p.Payee}, func(c ctx.Ctx) error {
		// re-check under the locks, another worker may have settled it
		if _, err := im.txRepo.FindByReference(c, p.ReferenceId, p.ReferenceType); err == nil {
			return nil
		} else if err != domain.ErrNotFound {
			return err
		}

		payer, err := im.walletRepo.FindOne(c, p.Payer)
		if err != nil {
			return err
		}
		payee, err := im.walletRepo.FindOne(c, p.Payee)
		if err != nil {
			return err
		}

		if p.FromHeld {
			if payer.HeldAmount.LessThan(p.Amount) {
				return domain.ErrInvalidState
			}
			payer.HeldAmount = payer.HeldAmount.Minus(p.Amount)
		} else if payer.AvailableBalance().LessThan(p.Amount) {
			im.met.BumpSum("payment.insufficient", 1)
			return domain.ErrInsufficientFunds
		}
		payer.Balance = payer.Balance.Minus(p.Amount)
		payee.Balance = payee.Balance.Plus(p.Amount)

		debit := im.newTransaction(payer, wallet.TxTypePayment, p.Amount.Neg(), p.ReferenceId, p.ReferenceType)
		credit := im.newTransaction(payee, wallet.TxTypePayment, p.Amount, p.ReferenceId, p.ReferenceType)

		return im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
			if err := im.walletRepo.Update(c, payer); err != nil {
				return err
			}
			if err := im.walletRepo.Update(c, payee); err != nil {
				return err
			}
			if err := im.txRepo.Insert(c, debit); err != nil {
				return err
			}
			return im.txRepo.Insert(c, credit)
		})
	})
}

func (im *impl) newTransaction(w *wallet.Wallet, txType wallet.TxType, amount domain.Amount, refId, refType string) *wallet.Transaction {
	return &wallet.Transaction{
		Id:            uuid.NewString(),
		UserId:        w.UserId,
		Type:          txType,
		Amount:        amount,
		BalanceAfter:  w.Balance,
		ReferenceId:   refId,
		ReferenceType: refType,
		Status:        wallet.TxStatusCompleted,
		CreatedAt:     time.Now(),
	}
}

func (im *impl) commit(c ctx.Ctx, w *wallet.Wallet, tx *wallet.Transaction) error {
	return im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
		if err := im.walletRepo.Update(c, w); err != nil {
			return err
		}
		return im.txRepo.Insert(c, tx)
	})
}

func (im *impl) withWalletLock(c ctx.Ctx, userId domain.UserId, fn func(ctx.Ctx) error) error {
	err := im.lock.WithLock(c, keys.WalletOpLock(userId), lockTTL, lockWait, fn)
	if err == domain.ErrLockTimeout || err == domain.ErrLockBusy {
		im.met.BumpSum("lock.busy", 1)
		return domain.ErrWalletBusy
	}
	return err
}

// withWalletLocks acquires the per-wallet locks in a stable order so two
// concurrent payments touching the same pair cannot deadlock.
func (im *impl) withWalletLocks(c ctx.Ctx, userIds []domain.UserId, fn func(ctx.Ctx) error) error {
	sorted := make([]string, 0, len(userIds))
	for _, id := range userIds {
		sorted = append(sorted, string(id))
	}
	sort.Strings(sorted)

	var run func(c ctx.Ctx, remaining []string) error
	run = func(c ctx.Ctx, remaining []string) error {
		if len(remaining) == 0 {
			return fn(c)
		}
		return im.lock.WithLock(c, keys.WalletOpLock(domain.UserId(remaining[0])), lockTTL, lockWait, func(c ctx.Ctx) error {
			return run(c, remaining[1:])
		})
	}

	err := run(c, sorted)
	if err == domain.ErrLockTimeout || err == domain.ErrLockBusy {
		im.met.BumpSum("lock.busy", 1)
		return domain.ErrWalletBusy
	}
	return err
}

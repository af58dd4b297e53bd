package wallet

import (
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
)

type Wallet struct {
	UserId     domain.UserId `json:"userId" bson:"userId"`
	Balance    domain.Amount `json:"balance" bson:"balance"`
	HeldAmount domain.Amount `json:"heldAmount" bson:"heldAmount"`
	Version    int64         `json:"version" bson:"version"`
	CreatedAt  time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// AvailableBalance is what the owner can still spend or hold.
func (w *Wallet) AvailableBalance() domain.Amount {
	return w.Balance.Minus(w.HeldAmount)
}

type TxType = string

const (
	TxTypeHold       TxType = "hold"
	TxTypeRelease    TxType = "release"
	TxTypeWithdrawal TxType = "withdrawal"
	TxTypePayment    TxType = "payment"
	TxTypeRefund     TxType = "refund"
)

type TxStatus = string

const (
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

// Transaction is an append-only ledger entry. Amount carries its sign:
// negative for debits, positive for credits.
type Transaction struct {
	Id            string        `json:"id" bson:"id"`
	UserId        domain.UserId `json:"userId" bson:"userId"`
	Type          TxType        `json:"type" bson:"type"`
	Amount        domain.Amount `json:"amount" bson:"amount"`
	BalanceAfter  domain.Amount `json:"balanceAfter" bson:"balanceAfter"`
	ReferenceId   string        `json:"referenceId" bson:"referenceId"`
	ReferenceType string        `json:"referenceType" bson:"referenceType"`
	Status        TxStatus      `json:"status" bson:"status"`
	CreatedAt     time.Time     `json:"createdAt" bson:"createdAt"`
}

const (
	ReferenceTypeAuction    = "auction"
	ReferenceTypeBuyNow     = "buynow"
	ReferenceTypeWithdrawal = "withdrawal"
)

type Repo interface {
	FindOne(c ctx.Ctx, userId domain.UserId) (*Wallet, error)
	Insert(c ctx.Ctx, w *Wallet) error
	// Update replaces the wallet guarded by the loaded version and
	// returns domain.ErrConcurrencyConflict when the guard misses.
	Update(c ctx.Ctx, w *Wallet) error
}

type TransactionRepo interface {
	Insert(c ctx.Ctx, tx *Transaction) error
	FindByReference(c ctx.Ctx, referenceId, referenceType string) (*Transaction, error)
	FindByUser(c ctx.Ctx, userId domain.UserId, limit int) ([]Transaction, error)
}

type HoldFunds struct {
	UserId        domain.UserId `json:"userId"`
	Amount        domain.Amount `json:"amount"`
	ReferenceId   string        `json:"referenceId"`
	ReferenceType string        `json:"referenceType"`
}

type ReleaseFunds struct {
	UserId        domain.UserId `json:"userId"`
	Amount        domain.Amount `json:"amount"`
	ReferenceId   string        `json:"referenceId"`
	ReferenceType string        `json:"referenceType"`
}

type Withdraw struct {
	UserId domain.UserId `json:"userId"`
	Amount domain.Amount `json:"amount"`
}

type ProcessPayment struct {
	Payer         domain.UserId `json:"payer"`
	Payee         domain.UserId `json:"payee"`
	Amount        domain.Amount `json:"amount"`
	ReferenceId   string        `json:"referenceId"`
	ReferenceType string        `json:"referenceType"`
	FromHeld      bool          `json:"fromHeld"`
}

type UseCase interface {
	Get(c ctx.Ctx, userId domain.UserId) (*Wallet, error)
	Create(c ctx.Ctx, userId domain.UserId, initial domain.Amount) (*Wallet, error)
	HoldFunds(c ctx.Ctx, p *HoldFunds) error
	ReleaseFunds(c ctx.Ctx, p *ReleaseFunds) error
	Withdraw(c ctx.Ctx, p *Withdraw) error
	ProcessPayment(c ctx.Ctx, p *ProcessPayment) error
	Transactions(c ctx.Ctx, userId domain.UserId, limit int) ([]Transaction, error)
}

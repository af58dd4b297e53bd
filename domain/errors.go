package domain

import "fmt"

// Err is a structured domain error: a machine-readable code, a human message,
// and whether the caller may retry the operation as-is. Errors compare by code
// so wrapped instances still match their sentinel with errors.Is.
type Err struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Err) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches by code so callers can errors.Is against the sentinels below
func (e *Err) Is(target error) bool {
	t, ok := target.(*Err)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying a more specific message
func (e *Err) WithMessage(format string, args ...interface{}) *Err {
	return &Err{
		Code:      e.Code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: e.Retryable,
	}
}

var (
	// ErrNotFound is returned when the requested aggregate does not exist
	ErrNotFound = &Err{Code: "not_found", Message: "requested resource not found"}
	// ErrInvalidState is returned when the aggregate cannot accept the operation
	ErrInvalidState = &Err{Code: "invalid_state", Message: "operation not allowed in current state"}
	// ErrBadParamInput is returned for malformed request bodies or params
	ErrBadParamInput = &Err{Code: "bad_param", Message: "given param is not valid"}
	// ErrAlreadyExists is returned when a unique constraint would be violated
	ErrAlreadyExists = &Err{Code: "already_exists", Message: "resource already exists"}

	// ErrLockBusy is returned by TryAcquire when the lock is held elsewhere
	ErrLockBusy = &Err{Code: "lock.busy", Message: "resource lock is held", Retryable: true}
	// ErrLockTimeout is returned by Acquire when the wait budget is exhausted
	ErrLockTimeout = &Err{Code: "lock.timeout", Message: "timed out waiting for resource lock", Retryable: true}

	// ErrConcurrencyConflict is a store-level write collision; retryable by the
	// caller, never auto-retried internally
	ErrConcurrencyConflict = &Err{Code: "concurrency_conflict", Message: "aggregate changed concurrently", Retryable: true}

	// ErrWalletBusy is returned when the wallet operation lock cannot be taken
	ErrWalletBusy = &Err{Code: "wallet.busy", Message: "wallet is busy, retry later", Retryable: true}
	// ErrInsufficientFunds is returned when available balance or held amount cannot cover the operation
	ErrInsufficientFunds = &Err{Code: "wallet.insufficient_funds", Message: "insufficient funds"}

	// ErrBuyNowConflict is returned to the loser of a concurrent buy-now race
	ErrBuyNowConflict = &Err{Code: "buynow.conflict", Message: "another buy-now attempt is in progress", Retryable: true}
	// ErrBuyNowConflictPurchased distinguishes "already sold" from a transient conflict
	ErrBuyNowConflictPurchased = &Err{Code: "buynow.conflict_purchased", Message: "auction was already purchased"}
	// ErrBuyNowUnavailable is returned when the auction does not offer buy-now
	ErrBuyNowUnavailable = &Err{Code: "buynow.unavailable", Message: "buy-now is not available for this auction"}

	// ErrAuctionNotLive is returned when bidding or buying on a non-live auction
	ErrAuctionNotLive = &Err{Code: "auction.not_live", Message: "auction is not live"}
	// ErrAuctionEnded is returned when the auction end timestamp has passed
	ErrAuctionEnded = &Err{Code: "auction.ended", Message: "auction has ended"}
	// ErrSelfBid is returned when the seller acts as a bidder or buyer
	ErrSelfBid = &Err{Code: "bid.self", Message: "seller cannot bid on own auction"}
	// ErrBidTooLow is returned when the amount does not clear highest + increment
	ErrBidTooLow = &Err{Code: "bid.too_low", Message: "bid does not meet minimum increment"}
	// ErrRetractionWindowExpired is returned for retractions after the bounded window
	ErrRetractionWindowExpired = &Err{Code: "bid.retraction_window_expired", Message: "retraction window has expired"}
	// ErrBidAlreadyRejected is returned when retracting a bid twice
	ErrBidAlreadyRejected = &Err{Code: "bid.already_rejected", Message: "bid is already rejected"}
	// ErrNotBidOwner is returned when a user retracts someone else's bid
	ErrNotBidOwner = &Err{Code: "bid.not_owner", Message: "only the original bidder may retract"}
	// ErrAutoBidExists is returned when a second active auto-bid would be created
	ErrAutoBidExists = &Err{Code: "autobid.exists", Message: "an active auto-bid already exists for this auction"}
	// ErrAutoBidMaxTooLow is returned when the max amount does not exceed the current highest
	ErrAutoBidMaxTooLow = &Err{Code: "autobid.max_too_low", Message: "max amount must exceed current highest bid"}
	// ErrAutoBidInactive is returned when updating or cancelling an inactive auto-bid
	ErrAutoBidInactive = &Err{Code: "autobid.inactive", Message: "auto-bid is not active"}
)

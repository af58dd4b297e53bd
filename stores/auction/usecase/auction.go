package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/query"
)

// updateRetries bounds the optimistic retry loop on version conflicts for
// the saga participant handlers, which run without a lock.
const updateRetries = 3

type AuctionUseCaseCfg struct {
	AuctionRepo auction.Repo
	OutboxRepo  outbox.Repo
	Query       query.Mongo
}

type impl struct {
	auctionRepo auction.Repo
	outboxRepo  outbox.Repo
	q           query.Mongo
}

func New(cfg *AuctionUseCaseCfg) auction.UseCase {
	return &impl{
		auctionRepo: cfg.AuctionRepo,
		outboxRepo:  cfg.OutboxRepo,
		q:           cfg.Query,
	}
}

func (im *impl) Get(c ctx.Ctx, id domain.AuctionId) (*auction.Auction, error) {
	res, err := im.auctionRepo.FindOne(c, id)
	if err != nil {
		if err != domain.ErrNotFound {
			c.WithFields(log.Fields{
				"err":       err,
				"auctionId": id,
			}).Error("failed to auctionRepo.FindOne")
		}
		return nil, err
	}
	return res, nil
}

func (im *impl) Create(c ctx.Ctx, a *auction.Auction) error {
	if a.Id == "" {
		a.Id = domain.AuctionId(uuid.NewString())
	}
	if a.Status == "" {
		a.Status = auction.StatusScheduled
	}
	if a.BuyNowPrice != nil && !a.BuyNowPrice.IsPositive() {
		return domain.ErrBadParamInput
	}
	now := time.Now()
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := im.auctionRepo.Insert(c, a); err != nil {
		if err != domain.ErrAlreadyExists {
			c.WithFields(log.Fields{
				"err":       err,
				"auctionId": a.Id,
			}).Error("failed to auctionRepo.Insert")
		}
		return err
	}
	return nil
}

func (im *impl) SetHighestBid(c ctx.Ctx, a *auction.Auction, amount domain.Amount, bidder domain.UserId) error {
	a.HighestBid = amount
	a.HighestBidder = bidder
	if err := im.auctionRepo.Update(c, a); err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": a.Id,
		}).Error("failed to auctionRepo.Update")
		return err
	}
	return nil
}

// ReserveForBuyNow marks the auction as held for one purchase attempt. The
// outcome event is written through the outbox in the same transaction as
// the auction update, and duplicate commands re-emit the earlier outcome.
func (im *impl) ReserveForBuyNow(c ctx.Ctx, msg *buynow.ReserveAuctionForBuyNow) error {
	for attempt := 0; ; attempt++ {
		a, err := im.auctionRepo.FindOne(c, msg.AuctionId)
		if err != nil {
			if err == domain.ErrNotFound {
				return im.emitReservationFailed(c, msg, buynow.ReasonInvalid)
			}
			return err
		}

		if a.ReservedBy == msg.CorrelationId {
			// duplicate command, reservation already taken
			reservedAt := a.UpdatedAt
			if a.ReservedAt != nil {
				reservedAt = *a.ReservedAt
			}
			return im.emitReserved(c, msg, reservedAt)
		}

		if !a.IsBuyNowAvailable() {
			reason := buynow.ReasonInvalid
			if a.Status == auction.StatusFinished && a.Winner != "" {
				reason = buynow.ReasonPurchased
			} else if a.ReservedBy != "" {
				reason = buynow.ReasonConflict
			}
			return im.emitReservationFailed(c, msg, reason)
		}

		now := time.Now()
		a.ReservedBy = msg.CorrelationId
		a.ReservedAt = &now

		err = im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
			if err := im.auctionRepo.Update(c, a); err != nil {
				return err
			}
			evt, err := outbox.NewEvent(
				buynow.TopicAuctionReserved,
				string(msg.AuctionId),
				msg.CorrelationId,
				&buynow.AuctionReservedForBuyNow{
					CorrelationId: msg.CorrelationId,
					AuctionId:     msg.AuctionId,
					ReservedAt:    now,
				},
			)
			if err != nil {
				return err
			}
			return im.outboxRepo.Insert(c, evt)
		})
		if err == domain.ErrConcurrencyConflict && attempt < updateRetries {
			continue
		}
		if err != nil {
			c.WithFields(log.Fields{
				"err":           err,
				"auctionId":     msg.AuctionId,
				"correlationId": msg.CorrelationId,
			}).Error("failed to reserve auction")
		}
		return err
	}
}

func (im *impl) CompleteBuyNow(c ctx.Ctx, msg *buynow.CompleteBuyNowAuction) error {
	for attempt := 0; ; attempt++ {
		a, err := im.auctionRepo.FindOne(c, msg.AuctionId)
		if err != nil {
			return err
		}

		if a.Status == auction.StatusFinished && a.Winner == msg.Winner {
			// duplicate command, completion already applied
			return im.emitCompleted(c, msg, a.UpdatedAt)
		}

		if a.ReservedBy != msg.CorrelationId {
			c.WithFields(log.Fields{
				"auctionId":     msg.AuctionId,
				"correlationId": msg.CorrelationId,
				"reservedBy":    a.ReservedBy,
			}).Error("complete command does not own the reservation")
			return domain.ErrInvalidState
		}

		now := time.Now()
		a.Status = auction.StatusFinished
		a.Winner = msg.Winner
		a.WinnerName = msg.WinnerName
		a.HighestBid = msg.Price
		a.HighestBidder = msg.Winner

		err = im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
			if err := im.auctionRepo.Update(c, a); err != nil {
				return err
			}
			evt, err := outbox.NewEvent(
				buynow.TopicAuctionCompleted,
				string(msg.AuctionId),
				msg.CorrelationId,
				&buynow.BuyNowAuctionCompleted{
					CorrelationId: msg.CorrelationId,
					AuctionId:     msg.AuctionId,
					CompletedAt:   now,
				},
			)
			if err != nil {
				return err
			}
			return im.outboxRepo.Insert(c, evt)
		})
		if err == domain.ErrConcurrencyConflict && attempt < updateRetries {
			continue
		}
		if err != nil {
			c.WithFields(log.Fields{
				"err":           err,
				"auctionId":     msg.AuctionId,
				"correlationId": msg.CorrelationId,
			}).Error("failed to complete buy-now auction")
		}
		return err
	}
}

// ReleaseReservation is the compensation path. Releasing a reservation the
// correlation does not hold is a no-op that still reports released.
func (im *impl) ReleaseReservation(c ctx.Ctx, msg *buynow.ReleaseAuctionReservation) error {
	for attempt := 0; ; attempt++ {
		a, err := im.auctionRepo.FindOne(c, msg.AuctionId)
		if err != nil {
			if err == domain.ErrNotFound {
				return im.emitReleased(c, msg)
			}
			return err
		}

		if a.ReservedBy != msg.CorrelationId {
			return im.emitReleased(c, msg)
		}

		a.ReservedBy = ""
		a.ReservedAt = nil

		err = im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
			if err := im.auctionRepo.Update(c, a); err != nil {
				return err
			}
			evt, err := outbox.NewEvent(
				buynow.TopicReservationReleased,
				string(msg.AuctionId),
				msg.CorrelationId,
				&buynow.AuctionReservationReleased{
					CorrelationId: msg.CorrelationId,
					AuctionId:     msg.AuctionId,
				},
			)
			if err != nil {
				return err
			}
			return im.outboxRepo.Insert(c, evt)
		})
		if err == domain.ErrConcurrencyConflict && attempt < updateRetries {
			continue
		}
		if err != nil {
			c.WithFields(log.Fields{
				"err":           err,
				"auctionId":     msg.AuctionId,
				"correlationId": msg.CorrelationId,
			}).Error("failed to release reservation")
		}
		return err
	}
}

func (im *impl) emitReserved(c ctx.Ctx, msg *buynow.ReserveAuctionForBuyNow, reservedAt time.Time) error {
	evt, err := outbox.NewEvent(
		buynow.TopicAuctionReserved,
		string(msg.AuctionId),
		msg.CorrelationId,
		&buynow.AuctionReservedForBuyNow{
			CorrelationId: msg.CorrelationId,
			AuctionId:     msg.AuctionId,
			ReservedAt:    reservedAt,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

func (im *impl) emitReservationFailed(c ctx.Ctx, msg *buynow.ReserveAuctionForBuyNow, reason buynow.FailureReason) error {
	evt, err := outbox.NewEvent(
		buynow.TopicReservationFailed,
		string(msg.AuctionId),
		msg.CorrelationId,
		&buynow.AuctionReservationFailed{
			CorrelationId: msg.CorrelationId,
			AuctionId:     msg.AuctionId,
			Reason:        reason,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

func (im *impl) emitCompleted(c ctx.Ctx, msg *buynow.CompleteBuyNowAuction, completedAt time.Time) error {
	evt, err := outbox.NewEvent(
		buynow.TopicAuctionCompleted,
		string(msg.AuctionId),
		msg.CorrelationId,
		&buynow.BuyNowAuctionCompleted{
			CorrelationId: msg.CorrelationId,
			AuctionId:     msg.AuctionId,
			CompletedAt:   completedAt,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

func (im *impl) emitReleased(c ctx.Ctx, msg *buynow.ReleaseAuctionReservation) error {
	evt, err := outbox.NewEvent(
		buynow.TopicReservationReleased,
		string(msg.AuctionId),
		msg.CorrelationId,
		&buynow.AuctionReservationReleased{
			CorrelationId: msg.CorrelationId,
			AuctionId:     msg.AuctionId,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

package usecase

import (
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain/auction"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/service/bus"
)

// Subscribe hooks the auction participant handlers up to the saga command
// topics. All three handlers are idempotent, replayed commands re-emit the
// earlier outcome.
func Subscribe(b bus.Bus, uc auction.UseCase) {
	b.Subscribe(buynow.TopicReserveAuction, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.ReserveAuctionForBuyNow{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return uc.ReserveForBuyNow(c, msg)
	})
	b.Subscribe(buynow.TopicCompleteAuction, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.CompleteBuyNowAuction{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return uc.CompleteBuyNow(c, msg)
	})
	b.Subscribe(buynow.TopicReleaseReservation, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.ReleaseAuctionReservation{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return uc.ReleaseReservation(c, msg)
	})
}

func decode(c ctx.Ctx, env *bus.Envelope, out interface{}) error {
	if err := env.Decode(out); err != nil {
		c.WithField("err", err).Error("failed to decode saga command")
		return err
	}
	return nil
}

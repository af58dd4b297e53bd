package usecase

import (
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/service/bus"
)

// Subscribe hooks the coordinator's event handlers up to the outcome
// topics of its participants.
func Subscribe(b bus.Bus, co buynow.Coordinator) {
	b.Subscribe(buynow.TopicAuctionReserved, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.AuctionReservedForBuyNow{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return co.OnAuctionReserved(c, msg)
	})
	b.Subscribe(buynow.TopicReservationFailed, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.AuctionReservationFailed{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return co.OnReservationFailed(c, msg)
	})
	b.Subscribe(buynow.TopicOrderCreated, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.BuyNowOrderCreated{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return co.OnOrderCreated(c, msg)
	})
	b.Subscribe(buynow.TopicOrderCreationFailed, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.BuyNowOrderCreationFailed{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return co.OnOrderFailed(c, msg)
	})
	b.Subscribe(buynow.TopicAuctionCompleted, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.BuyNowAuctionCompleted{}
		if err := decode(c, env, msg); err != nil {
			return err
		}
		return co.OnAuctionCompleted(c, msg)
	})
}

func decode(c ctx.Ctx, env *bus.Envelope, out interface{}) error {
	if err := env.Decode(out); err != nil {
		c.WithField("err", err).Error("failed to decode saga event")
		return err
	}
	return nil
}

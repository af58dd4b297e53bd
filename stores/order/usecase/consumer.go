package usecase

import (
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/order"
	"github.com/bidhaus/goapi/service/bus"
)

// Subscribe wires the order service to the saga topics it participates
// in. Orders are finalized from the saga outcome: completed on settlement,
// cancelled when the saga times out.
func Subscribe(b bus.Bus, uc order.UseCase) {
	b.Subscribe(buynow.TopicCreateOrder, CreateOrderHandler(uc))
	b.Subscribe(buynow.TopicSagaCompleted, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.BuyNowSagaCompleted{}
		if err := env.Decode(msg); err != nil {
			c.WithField("err", err).Error("failed to decode saga completed event")
			return err
		}
		return uc.MarkCompleted(c, msg.CorrelationId)
	})
	b.Subscribe(buynow.TopicSagaTimedOut, func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.BuyNowSagaTimedOut{}
		if err := env.Decode(msg); err != nil {
			c.WithField("err", err).Error("failed to decode saga timed out event")
			return err
		}
		if err := uc.MarkCancelled(c, msg.CorrelationId); err != nil && err != domain.ErrNotFound {
			return err
		}
		return nil
	})
}

// CreateOrderHandler returns the handler for create-order commands coming
// off the bus. CreateBuyNow is idempotent on the correlation id.
func CreateOrderHandler(uc order.UseCase) bus.Handler {
	return func(c ctx.Ctx, env *bus.Envelope) error {
		cmd := &buynow.CreateBuyNowOrder{}
		if err := env.Decode(cmd); err != nil {
			c.WithField("err", err).Error("failed to decode create-order command")
			return err
		}

		if err := uc.CreateBuyNow(c, cmd); err != nil {
			c.WithFields(log.Fields{
				"err":           err,
				"correlationId": cmd.CorrelationId,
			}).Error("failed to handle create-order command")
			return err
		}
		return nil
	}
}

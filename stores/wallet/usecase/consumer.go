package usecase

import (
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/wallet"
	"github.com/bidhaus/goapi/service/bus"
)

// SettleBuyNow returns the handler that settles a finished buy-now saga by
// moving the purchase price from buyer to seller. ProcessPayment is keyed
// on the correlation id, so redeliveries settle nothing twice.
func SettleBuyNow(uc wallet.UseCase) bus.Handler {
	return func(c ctx.Ctx, env *bus.Envelope) error {
		msg := &buynow.BuyNowSagaCompleted{}
		if err := env.Decode(msg); err != nil {
			c.WithField("err", err).Error("failed to decode saga completed event")
			return err
		}

		err := uc.ProcessPayment(c, &wallet.ProcessPayment{
			Payer:         msg.Buyer,
			Payee:         msg.Seller,
			Amount:        msg.Price,
			ReferenceId:   string(msg.CorrelationId),
			ReferenceType: wallet.ReferenceTypeBuyNow,
		})
		if err != nil {
			c.WithFields(log.Fields{
				"err":           err,
				"correlationId": msg.CorrelationId,
			}).Error("failed to settle buy-now payment")
		}
		return err
	}
}

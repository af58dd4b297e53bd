package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	"github.com/bidhaus/goapi/domain"
	"github.com/bidhaus/goapi/domain/buynow"
	"github.com/bidhaus/goapi/domain/order"
	"github.com/bidhaus/goapi/domain/outbox"
	"github.com/bidhaus/goapi/service/query"
)

type OrderUseCaseCfg struct {
	OrderRepo  order.Repo
	OutboxRepo outbox.Repo
	Query      query.Mongo
}

type impl struct {
	orderRepo  order.Repo
	outboxRepo outbox.Repo
	q          query.Mongo
	met        metrics.Service
}

func New(cfg *OrderUseCaseCfg) order.UseCase {
	return &impl{
		orderRepo:  cfg.OrderRepo,
		outboxRepo: cfg.OutboxRepo,
		q:          cfg.Query,
		met:        metrics.New("order"),
	}
}

func (im *impl) Get(c ctx.Ctx, id string) (*order.Order, error) {
	return im.orderRepo.FindOne(c, id)
}

// CreateBuyNow handles the create-order command. A replayed command hits
// the unique correlation index and re-emits the earlier outcome instead
// of creating a second order.
func (im *impl) CreateBuyNow(c ctx.Ctx, cmd *buynow.CreateBuyNowOrder) error {
	if !cmd.Price.IsPositive() || cmd.Buyer == "" || cmd.Seller == "" {
		return im.emitCreationFailed(c, cmd, "malformed create command")
	}

	now := time.Now()
	o := &order.Order{
		Id:            uuid.NewString(),
		CorrelationId: cmd.CorrelationId,
		AuctionId:     cmd.AuctionId,
		Buyer:         cmd.Buyer,
		BuyerName:     cmd.BuyerName,
		Seller:        cmd.Seller,
		SellerName:    cmd.SellerName,
		Price:         cmd.Price,
		ItemTitle:     cmd.ItemTitle,
		Status:        order.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := im.q.RunWithTransaction(c, func(c ctx.Ctx) error {
		if err := im.orderRepo.Insert(c, o); err != nil {
			return err
		}
		return im.emitCreated(c, cmd.CorrelationId, o.Id, now)
	})
	if err == domain.ErrAlreadyExists {
		existing, err := im.orderRepo.FindByCorrelation(c, cmd.CorrelationId)
		if err != nil {
			return err
		}
		return im.emitCreated(c, cmd.CorrelationId, existing.Id, existing.CreatedAt)
	}
	if err != nil {
		c.WithFields(log.Fields{
			"err":           err,
			"correlationId": cmd.CorrelationId,
		}).Error("failed to create buy-now order")
		return err
	}
	im.met.BumpSum("buynow.created", 1)
	return nil
}

func (im *impl) MarkCompleted(c ctx.Ctx, correlationId domain.CorrelationId) error {
	return im.orderRepo.UpdateStatus(c, correlationId, order.StatusCompleted)
}

func (im *impl) MarkCancelled(c ctx.Ctx, correlationId domain.CorrelationId) error {
	return im.orderRepo.UpdateStatus(c, correlationId, order.StatusCancelled)
}

func (im *impl) emitCreated(c ctx.Ctx, correlationId domain.CorrelationId, orderId string, createdAt time.Time) error {
	evt, err := outbox.NewEvent(
		buynow.TopicOrderCreated,
		string(correlationId),
		correlationId,
		&buynow.BuyNowOrderCreated{
			CorrelationId: correlationId,
			OrderId:       orderId,
			CreatedAt:     createdAt,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

func (im *impl) emitCreationFailed(c ctx.Ctx, cmd *buynow.CreateBuyNowOrder, reason string) error {
	c.WithFields(log.Fields{
		"correlationId": cmd.CorrelationId,
		"auctionId":     cmd.AuctionId,
		"reason":        reason,
	}).Warn("rejecting create-order command")
	evt, err := outbox.NewEvent(
		buynow.TopicOrderCreationFailed,
		string(cmd.CorrelationId),
		cmd.CorrelationId,
		&buynow.BuyNowOrderCreationFailed{
			CorrelationId: cmd.CorrelationId,
			AuctionId:     cmd.AuctionId,
			Reason:        reason,
		},
	)
	if err != nil {
		return err
	}
	return im.outboxRepo.Insert(c, evt)
}

package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
)

type Status = string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
)

// Event is a message appended in the same transaction as the business
// write it announces. A dispatcher publishes pending events later.
type Event struct {
	Id            string               `json:"id" bson:"id"`
	Topic         string               `json:"topic" bson:"topic"`
	PartitionKey  string               `json:"partitionKey" bson:"partitionKey"`
	CorrelationId domain.CorrelationId `json:"correlationId" bson:"correlationId"`
	Payload       []byte               `json:"payload" bson:"payload"`
	Status        Status               `json:"status" bson:"status"`
	Attempts      int                  `json:"attempts" bson:"attempts"`
	CreatedAt     time.Time            `json:"createdAt" bson:"createdAt"`
	DispatchedAt  *time.Time           `json:"dispatchedAt,omitempty" bson:"dispatchedAt,omitempty"`
}

// NewEvent marshals payload to json and wraps it as a pending event.
func NewEvent(topic, partitionKey string, correlationId domain.CorrelationId, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Id:            uuid.NewString(),
		Topic:         topic,
		PartitionKey:  partitionKey,
		CorrelationId: correlationId,
		Payload:       data,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}, nil
}

type Repo interface {
	Insert(c ctx.Ctx, e *Event) error
	FindPending(c ctx.Ctx, limit int) ([]Event, error)
	MarkDispatched(c ctx.Ctx, id string) error
	BumpAttempts(c ctx.Ctx, id string) error
}

// Dispatcher polls pending events and publishes them to the bus.
type Dispatcher interface {
	Start(c ctx.Ctx)
	Stop()
}

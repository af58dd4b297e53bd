// Package bus provides topic based publish/subscribe used to decouple the
// saga coordinator from its participants.
package bus

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/domain"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

// Envelope carries one published message. Payload is json encoded.
type Envelope struct {
	MessageId     string               `json:"messageId"`
	Topic         string               `json:"topic"`
	PartitionKey  string               `json:"partitionKey"`
	CorrelationId domain.CorrelationId `json:"correlationId"`
	Payload       []byte               `json:"payload"`
	Attempt       int                  `json:"attempt"`
	PublishedAt   time.Time            `json:"publishedAt"`
}

// Decode unmarshals the payload into out.
func (e *Envelope) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

func marshalPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

// Handler consumes one envelope. Returning an error triggers redelivery,
// so handlers must be idempotent.
type Handler func(c ctx.Ctx, env *Envelope) error

// Bus delivers messages at least once. Messages sharing a partition key
// are delivered in publish order.
type Bus interface {
	Publish(c ctx.Ctx, topic, partitionKey string, correlationId domain.CorrelationId, payload interface{}) error
	Subscribe(topic string, handler Handler)
	Close()
}

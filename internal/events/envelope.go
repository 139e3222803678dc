// Package events publishes try-on lifecycle events to RabbitMQ so other
// services (storefront notifications, analytics) can react without polling.
//
// Publishing is best-effort: callers log failures and carry on. When no broker
// URL is configured a no-op publisher is used.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// TypeRequestDispatched is emitted after the primary photo reaches the operator chat.
	TypeRequestDispatched = "tryon.request.dispatched.v1"
	// TypeReplyResolved is emitted when an operator reply is stored for a request.
	TypeReplyResolved = "tryon.reply.resolved.v1"
)

// Meta carries routing and tracing metadata for an event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// RequestDispatched is the payload of TypeRequestDispatched.
type RequestDispatched struct {
	RequestID     string `json:"request_id"`
	ChatID        string `json:"chat_id"`
	MessageID     int64  `json:"message_id"`
	RequesterName string `json:"requester_name"`
	ProductLabel  string `json:"product_label"`
}

// ReplyResolved is the payload of TypeReplyResolved. The reply URL embeds the
// bot token and is deliberately absent.
type ReplyResolved struct {
	RequestID  string    `json:"request_id"`
	Revisions  int       `json:"revisions"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// NewEnvelope wraps data with fresh metadata. The request id doubles as the
// correlation id so consumers can join both events.
func NewEnvelope(producer, eventType, correlationID string, data any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	id := uuid.NewString()
	if correlationID == "" {
		correlationID = id
	}
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: correlationID,
			Producer:      producer,
			Time:          now.UTC(),
			Type:          eventType,
		},
		Data: raw,
	}, nil
}

// RoutingKey derives the topic routing key from an event type by dropping the
// version suffix ("tryon.request.dispatched.v1" -> "tryon.request.dispatched").
func RoutingKey(eventType string) string {
	for i := len(eventType) - 1; i >= 0; i-- {
		if eventType[i] == '.' {
			suffix := eventType[i+1:]
			if len(suffix) > 1 && suffix[0] == 'v' && isDigits(suffix[1:]) {
				return eventType[:i]
			}
			break
		}
	}
	return eventType
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

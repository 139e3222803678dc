package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tryonrelay/internal/config"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (r *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	r.exchange, r.key, r.msg = exchange, key, msg
	return r.err
}

func (r *recordingChannel) Close() error {
	r.closed = true
	return nil
}

func TestPublishSendsEnvelope(t *testing.T) {
	ch := &recordingChannel{}
	pub := newAMQPPublisher(ch, "tryonrelay.events", "tryonrelay")
	pub.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	err := pub.Publish(context.Background(), TypeRequestDispatched, "1700000000000", RequestDispatched{
		RequestID: "1700000000000",
		ChatID:    "-1001",
		MessageID: 77,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if ch.exchange != "tryonrelay.events" || ch.key != "tryon.request.dispatched" {
		t.Fatalf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", ch.msg)
	}
	if ch.msg.CorrelationId != "1700000000000" || ch.msg.Type != TypeRequestDispatched {
		t.Fatalf("unexpected headers %+v", ch.msg)
	}

	var env Envelope
	if err := json.Unmarshal(ch.msg.Body, &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Meta.ID == "" || env.Meta.ID != ch.msg.MessageId {
		t.Fatalf("meta id mismatch: %+v vs %s", env.Meta, ch.msg.MessageId)
	}
	if env.Meta.Producer != "tryonrelay" || !env.Meta.Time.Equal(pub.now()) {
		t.Fatalf("unexpected meta %+v", env.Meta)
	}
	var data RequestDispatched
	if err := json.Unmarshal(env.Data, &data); err != nil || data.MessageID != 77 {
		t.Fatalf("unexpected data %s (%v)", env.Data, err)
	}
}

func TestPublishWrapsChannelError(t *testing.T) {
	ch := &recordingChannel{err: amqp.ErrClosed}
	pub := newAMQPPublisher(ch, "x", "p")
	err := pub.Publish(context.Background(), TypeReplyResolved, "1", ReplyResolved{RequestID: "1"})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	ch := &recordingChannel{}
	pub := newAMQPPublisher(ch, "x", "p")
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Fatal("channel not closed")
	}
	if err := pub.Publish(context.Background(), TypeReplyResolved, "1", nil); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestConnectWithoutURLIsNoop(t *testing.T) {
	cfg := config.Default()
	pub, err := Connect(context.Background(), &cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, ok := pub.(Noop); !ok {
		t.Fatalf("expected Noop publisher, got %T", pub)
	}
	if err := pub.Publish(context.Background(), TypeReplyResolved, "1", nil); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}

func TestNewEnvelopeDefaultsCorrelationToID(t *testing.T) {
	env, err := NewEnvelope("p", TypeReplyResolved, "", map[string]int{"a": 1}, time.Now())
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.Meta.CorrelationID != env.Meta.ID {
		t.Fatalf("correlation id should default to event id: %+v", env.Meta)
	}
}

func TestRoutingKey(t *testing.T) {
	tests := map[string]string{
		"tryon.request.dispatched.v1": "tryon.request.dispatched",
		"tryon.reply.resolved.v12":    "tryon.reply.resolved",
		"tryon.custom":                "tryon.custom",
		"tryon.vnext":                 "tryon.vnext",
	}
	for in, want := range tests {
		if got := RoutingKey(in); got != want {
			t.Errorf("RoutingKey(%q) = %q, want %q", in, got, want)
		}
	}
}

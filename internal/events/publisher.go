package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

type Type string

const (
	TypeBookingSynced         Type = "booking.synced"
	TypeBookingStatusChanged  Type = "booking.status_changed"
	TypeBookingPaymentChanged Type = "booking.payment_changed"
)

// Event — доменное событие ядра.
type Event struct {
	ID         string               `json:"id"`
	Type       Type                 `json:"type"`
	Scope      string               `json:"scope"`
	Reference  string               `json:"bookingReference"`
	OccurredAt time.Time            `json:"occurredAt"`
	Booking    *model.BookingRecord `json:"booking,omitempty"`
}

func New(t Type, scope string, rec model.BookingRecord, at time.Time) Event {
	b := rec.Clone()
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Scope:      scope,
		Reference:  rec.BookingReference,
		OccurredAt: at,
		Booking:    &b,
	}
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher — события никуда не уходят.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }

// KafkaPublisher публикует события в топик, ключ сообщения — booking reference,
// чтобы события одного бронирования попадали в одну партицию.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Reference),
			Value: value,
			Time:  e.OccurredAt,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write events to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

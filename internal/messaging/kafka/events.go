package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "orders.events"
	TopicDeadLetterQueue = "orders.dlq" // Dead Letter Queue для событий, не опубликованных после всех попыток
)

// Kafka headers, которые дублируют поля конверта для маршрутизации без разбора JSON.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderReplayedAt    = "x-replayed-at"
)

// Envelope — формат сообщения, публикуемого из outbox.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key — ключ партиционирования: события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// ParseEnvelope разбирает значение Kafka-сообщения.
func ParseEnvelope(value []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return envelope, nil
}

// ParseDeadLetter достаёт DLQ-запись из конверта topic orders.dlq.
func ParseDeadLetter(value []byte) (domain.DeadLetter, error) {
	envelope, err := ParseEnvelope(value)
	if err != nil {
		return domain.DeadLetter{}, err
	}
	if len(envelope.Payload) == 0 {
		return domain.DeadLetter{}, fmt.Errorf("dlq envelope %q has empty payload", envelope.ID)
	}

	var record domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if len(record.Payload) == 0 {
		return domain.DeadLetter{}, fmt.Errorf("dead letter %q does not contain original payload", envelope.ID)
	}
	if record.OutboxID == "" {
		record.OutboxID = envelope.ID
	}
	if record.AggregateID == "" {
		record.AggregateID = envelope.AggregateID
	}
	if record.AggregateType == "" {
		record.AggregateType = envelope.AggregateType
	}
	if record.EventType == "" {
		record.EventType = envelope.EventType
	}
	return record, nil
}

// ParseOrderEvent разбирает событие заказа из сообщения topic orders.events.
func ParseOrderEvent(value []byte) (domain.OrderEvent, error) {
	envelope, err := ParseEnvelope(value)
	if err != nil {
		return domain.OrderEvent{}, err
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return event, nil
}

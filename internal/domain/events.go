package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderEvent — полезная нагрузка событий жизненного цикла заказа в outbox.
type OrderEvent struct {
	EventType  string    `json:"event_type"`
	Order      OrderView `json:"order"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewOrderEventMessage упаковывает событие заказа в outbox-сообщение.
// Для order.deleted в Order достаточно uuid и user.
func NewOrderEventMessage(eventType string, order Order, occurredAt time.Time) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderEvent{
		EventType:  eventType,
		Order:      order.View(),
		OccurredAt: occurredAt.UTC(),
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.UUID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

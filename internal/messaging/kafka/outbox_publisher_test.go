package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)

	var published *sarama.ProducerMessage
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		published = msg
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer), "")
	require.Equal(t, TopicOrderEvents, publisher.Topic())
	publisher.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"event_type":"order.created"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())

	require.NotNil(t, published)
	key, err := published.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "order-123", string(key))

	value, err := published.Value.Encode()
	require.NoError(t, err)
	envelope, err := ParseEnvelope(value)
	require.NoError(t, err)
	assert.Equal(t, "outbox-1", envelope.ID)
	assert.Equal(t, domain.EventOrderCreated, envelope.EventType)
	assert.JSONEq(t, `{"event_type":"order.created"}`, string(envelope.Payload))

	headers := map[string]string{}
	for _, h := range published.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	assert.Equal(t, domain.EventOrderCreated, headers[HeaderEventType])
	assert.Equal(t, domain.AggregateOrder, headers[HeaderAggregateType])
	assert.Equal(t, "outbox-1", headers[HeaderOutboxID])
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer), TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-234",
		EventType:     domain.EventOrderDeleted,
		Payload:       []byte(`{}`),
	})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_KeyFallsBackToID(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "outbox-3" {
			return fmt.Errorf("unexpected key %q", key)
		}
		if msg.Topic != TopicDeadLetterQueue {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer), TopicDeadLetterQueue)
	require.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3", Payload: []byte(`{}`)}))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-4"}))
}

func TestParseOrderEvent(t *testing.T) {
	order := domain.Order{UUID: "order-1", UserUUID: "user-1"}
	msg, err := domain.NewOrderEventMessage(domain.EventOrderDeleted, order, time.Now())
	require.NoError(t, err)

	raw, err := json.Marshal(NewEnvelope(msg, time.Now()))
	require.NoError(t, err)

	event, err := ParseOrderEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOrderDeleted, event.EventType)
	assert.Equal(t, "order-1", event.Order.UUID)

	_, err = ParseOrderEvent([]byte(`not json`))
	require.Error(t, err)
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

// OffsetClient — часть sarama.Client, нужная для определения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionConsumer — часть sarama.PartitionConsumer.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает чтение партиции с заданного offset.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
}

type saramaPartitionSource struct {
	consumer sarama.Consumer
}

// NewPartitionSource адаптирует sarama.Consumer к PartitionSource.
func NewPartitionSource(consumer sarama.Consumer) PartitionSource {
	return saramaPartitionSource{consumer: consumer}
}

func (s saramaPartitionSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// ReplayOptions задаёт границы одного прохода по DLQ.
type ReplayOptions struct {
	SourceTopic string
	Limit       int
	FromNewest  bool
	IdleTimeout time.Duration
	// Execute=false — dry-run: кандидаты только логируются.
	Execute bool
}

// ReplayStats — итог прохода.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer перечитывает DLQ и возвращает события заказов в основной topic.
type Replayer struct {
	client    OffsetClient
	source    PartitionSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

// NewReplayer создаёт Replayer. publisher может быть nil только для dry-run.
func NewReplayer(client OffsetClient, source PartitionSource, publisher domain.OutboxPublisher) *Replayer {
	return &Replayer{
		client:    client,
		source:    source,
		publisher: publisher,
		logger:    log.WithField("component", "dlq-replayer"),
	}
}

// Run сканирует не более opts.Limit сообщений по всем партициям source topic.
func (r *Replayer) Run(ctx context.Context, opts ReplayOptions) (ReplayStats, error) {
	var total ReplayStats

	if r.client == nil || r.source == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if opts.Execute && r.publisher == nil {
		return total, fmt.Errorf("publisher is required in execute mode")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultReplayLimit
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultReplayIdleTimeout
	}
	if opts.SourceTopic == "" {
		opts.SourceTopic = TopicDeadLetterQueue
	}

	partitions, err := r.client.Partitions(opts.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", opts.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", opts.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= opts.Limit {
			break
		}
		stats, err := r.replayPartition(ctx, opts, partition, opts.Limit-total.Processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if opts.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, opts ReplayOptions, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(opts.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(opts.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if opts.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(opts.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(opts.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(opts.IdleTimeout)

			stats.Processed++
			if err := r.replayMessage(msg, opts.Execute); err != nil {
				if isPublishError(err) {
					return stats, err
				}
				stats.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}
			stats.Replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}

	return stats, nil
}

type publishError struct{ err error }

func (e publishError) Error() string { return "publish replay message: " + e.err.Error() }
func (e publishError) Unwrap() error { return e.err }

func isPublishError(err error) bool {
	var pe publishError
	return errors.As(err, &pe)
}

func (r *Replayer) replayMessage(msg *sarama.ConsumerMessage, execute bool) error {
	record, err := ParseDeadLetter(msg.Value)
	if err != nil {
		return err
	}
	event := record.Message()

	if !execute {
		r.logger.WithFields(log.Fields{
			"partition":  msg.Partition,
			"offset":     msg.Offset,
			"outbox_id":  event.ID,
			"event_type": event.EventType,
			"order_uuid": event.AggregateID,
		}).Info("dlq replay candidate")
		return nil
	}

	if err := r.publisher.Publish(event); err != nil {
		return publishError{err: err}
	}
	return nil
}

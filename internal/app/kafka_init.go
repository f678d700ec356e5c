package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/outbox"
)

const kafkaClientID = "orders-service"

// initKafkaProducer создаёт producer, если брокеры заданы.
// При ошибке сервис продолжает работу без публикации событий.
func initKafkaProducer(cfg Config, logger *log.Entry) *kafka.Producer {
	if !cfg.KafkaEnabled() {
		logger.Info("kafka brokers are not configured, order events are not published")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer
}

// closeKafkaProducer закрывает producer, если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startOutboxWorker запускает доставку outbox в фоне. done закрывается после выхода воркера.
func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	repo domain.OutboxRepository,
	publisher, dlqPublisher domain.OutboxPublisher,
	logger *log.Entry,
) (cancel context.CancelFunc, done <-chan struct{}) {
	workerCtx, cancel := context.WithCancel(ctx)
	worker := outbox.NewWorker(
		repo,
		publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		worker.Run(workerCtx)
	}()
	return cancel, ch
}

// shutdownOutboxWorker останавливает воркер и ждёт завершения текущего цикла.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

// outboxStats адаптирует OutboxRepository.Stats к проверке backlog.
func outboxStats(repo domain.OutboxRepository) healthcheck.OutboxStatsFunc {
	return func() (int, time.Time, error) {
		stats, err := repo.Stats()
		if err != nil {
			return 0, time.Time{}, err
		}
		return stats.PendingCount, stats.OldestPendingAt, nil
	}
}

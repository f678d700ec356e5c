package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/app"
	"github.com/vladislavdragonenkov/orders/internal/version"
)

const envLogLevel = "ORDERS_LOG_LEVEL"

// setupLogger настраивает формат и уровень логирования для сервиса.
// Пустой level означает info.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level = strings.TrimSpace(level)
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// loadDotEnv подхватывает .env из рабочей директории; отсутствие файла не ошибка.
// Уже выставленные переменные окружения не перезаписываются.
func loadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func main() {
	if err := loadDotEnv(); err != nil {
		log.WithError(err).Warn("не удалось прочитать .env")
	}
	if err := setupLogger(os.Getenv(envLogLevel)); err != nil {
		log.WithError(err).Warnf("некорректный %s, используем info", envLogLevel)
	}

	cfg, err := app.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaEnabled(),
	}).Info("запускаем order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order service остановлен")
}

// Package cli wires configuration, logging and the adapters into the
// cloudspend subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cloudspend/internal/amqp"
	"cloudspend/internal/config"
	"cloudspend/internal/core"
	"cloudspend/internal/events"
	"cloudspend/internal/kafka"
	"cloudspend/internal/log"
	gsheet "cloudspend/internal/sheets/google"
	"cloudspend/internal/storage"
	"cloudspend/internal/tags"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Output = os.Stderr
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	lc.Format = cfg.LogFormat
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// LoadTagMapping reads the mapping from the configured sheet, or from the
// CSV file when no sheet is set. A missing or malformed mapping is logged and
// yields the identity mapping.
func LoadTagMapping(ctx context.Context, cfg *config.Config, logger *log.Logger) (tags.Mapping, error) {
	loader := tags.NewLoader(logger)
	if cfg.TagMappingSheetID != "" {
		client, err := gsheet.New(ctx, gsheet.ConfigFromEnv(cfg.TagMappingSheetID, "", cfg.TagMappingSheetRange))
		if err != nil {
			return tags.Mapping{}, fmt.Errorf("%w: %v", core.ErrCredentials, err)
		}
		m, err := loader.LoadTable(ctx, client)
		if errors.Is(err, core.ErrFileFormat) {
			logger.Warn("Tag mapping sheet is malformed, using identifiers as-is",
				"sheet", cfg.TagMappingSheetID, log.FieldError, err)
			return tags.Mapping{}, nil
		}
		return m, err
	}

	m, err := loader.Load(cfg.TagMappingPath)
	switch {
	case errors.Is(err, core.ErrConfigMissing):
		logger.Warn("Tag mapping not found, using identifiers as-is",
			log.FieldPath, cfg.TagMappingPath)
		return tags.Mapping{}, nil
	case errors.Is(err, core.ErrFileFormat):
		logger.Warn("Tag mapping is malformed, using identifiers as-is",
			log.FieldPath, cfg.TagMappingPath, log.FieldError, err)
		return tags.Mapping{}, nil
	}
	return m, err
}

// OpenStore opens the configured run store. It returns nil when storage is
// disabled.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*storage.Repository, error) {
	if cfg.StorageDriver == "" || cfg.StorageDriver == "none" {
		return nil, nil
	}
	return storage.Open(ctx, storage.Config{
		Driver:      cfg.StorageDriver,
		SQLitePath:  cfg.SQLiteDBPath,
		PostgresDSN: cfg.PostgresDSN,
	}, logger)
}

// NewPublisher returns the configured run notifier, or events.Nop.
func NewPublisher(cfg *config.Config, logger *log.Logger) (events.Publisher, error) {
	switch cfg.Notifier {
	case "amqp":
		client, err := amqp.NewClient(amqp.Config{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
			Queue:      cfg.AMQPQueue,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			WriteTimeout: cfg.PublishTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return pub, nil
	}
	return events.Nop{}, nil
}

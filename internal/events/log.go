package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/kafka"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/angelmondragon/flashticket-backend/pkg/pubsub"
)

// Log is an append-only event log: Kafka, Pub/Sub or the structured logger.
type Log interface {
	Append(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
	Ping(ctx context.Context) error
	Close() error
}

// OpenLog builds the event log selected by cfg.Events.Driver.
func OpenLog(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Log, error) {
	switch strings.ToLower(cfg.Events.Driver) {
	case config.EventsDriverKafka:
		return kafka.NewProducer(cfg.Kafka, logg)
	case config.EventsDriverPubSub:
		return pubsub.NewClient(ctx, cfg.GCP, []string{cfg.Events.Topic}, logg)
	case config.EventsDriverLog, "":
		return NewLoggerLog(logg), nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Events.Driver)
	}
}

// LoggerLog writes events to the structured log. Used in development and
// wherever no broker is provisioned.
type LoggerLog struct {
	logg *logger.Logger
}

func NewLoggerLog(logg *logger.Logger) *LoggerLog {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LoggerLog{logg: logg}
}

func (l *LoggerLog) Append(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	fields := map[string]any{
		"topic":   topic,
		"key":     key,
		"payload": string(value),
	}
	for k, v := range headers {
		fields[k] = v
	}
	l.logg.Info(l.logg.WithFields(ctx, fields), "lifecycle event")
	return nil
}

func (l *LoggerLog) Ping(context.Context) error { return nil }

func (l *LoggerLog) Close() error { return nil }

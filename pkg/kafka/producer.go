package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrEmptyTopic     = errors.New("message topic cannot be empty")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

const (
	headerOriginalTopic = "original-topic"
	headerDLQError      = "dlq-error"
	headerDLQTimestamp  = "dlq-timestamp"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer appends keyed messages to Kafka topics. Messages sharing a key land
// on the same partition, so one reservation's events stay ordered.
type Producer struct {
	writer    messageWriter
	dlqWriter messageWriter
	dlqTopic  string
	logg      *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewProducer builds a topic-less writer; every message carries its own topic.
func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	compression := compressionCodec(cfg.Compression)
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: requiredAcks(cfg.RequiredAcks),
		Compression:  compression,
		MaxAttempts:  maxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:  errorLogger(logg),
	}
	producer := &Producer{writer: writer, dlqTopic: cfg.DLQTopic, logg: logg}

	if cfg.DLQTopic != "" {
		producer.dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  compression,
			MaxAttempts:  3,
			Logger:       kafka.LoggerFunc(func(string, ...any) {}),
			ErrorLogger:  errorLogger(logg),
		}
	}
	return producer, nil
}

func errorLogger(logg *logger.Logger) kafka.LoggerFunc {
	return func(msg string, args ...any) {
		logg.Warn(context.Background(), "kafka: "+fmt.Sprintf(msg, args...))
	}
}

func compressionCodec(name string) compress.Compression {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return compress.None
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func requiredAcks(value int) kafka.RequiredAcks {
	switch value {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// Append writes one message. On failure the message is copied to the DLQ
// topic when one is configured; the original error is still returned.
func (p *Producer) Append(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrProducerClosed
	}
	switch {
	case topic == "":
		return ErrEmptyTopic
	case key == "":
		return ErrEmptyKey
	case len(value) == 0:
		return ErrEmptyValue
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Time:    time.Now().UTC(),
		Headers: toHeaders(headers),
	}
	err := p.writer.WriteMessages(ctx, msg)
	if err == nil {
		return nil
	}
	if p.dlqWriter != nil {
		if dlqErr := p.sendToDLQ(ctx, topic, key, value, headers, err); dlqErr != nil {
			return fmt.Errorf("failed to send to DLQ: %v (original error: %w)", dlqErr, err)
		}
	}
	return err
}

func (p *Producer) sendToDLQ(ctx context.Context, topic, key string, value []byte, headers map[string]string, original error) error {
	dlqHeaders := make(map[string]string, len(headers)+3)
	for k, v := range headers {
		dlqHeaders[k] = v
	}
	dlqHeaders[headerOriginalTopic] = topic
	dlqHeaders[headerDLQError] = original.Error()
	dlqHeaders[headerDLQTimestamp] = time.Now().UTC().Format(time.RFC3339)

	return p.dlqWriter.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    time.Now().UTC(),
		Headers: toHeaders(dlqHeaders),
	})
}

func toHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// Ping is a no-op; kafka-go dials lazily on first write.
func (p *Producer) Ping(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	return nil
}

// Close flushes and closes both writers.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if p.writer != nil {
		err = p.writer.Close()
	}
	if p.dlqWriter != nil {
		if dlqErr := p.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}

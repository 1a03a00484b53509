package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

// messageWriter is the part of *kafka.Writer the backend uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStorage publishes every reading as one message keyed by asset
type KafkaStorage struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaStorage creates a synchronous writer for topic
func NewKafkaStorage(brokers []string, topic string) (*KafkaStorage, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info("init kafka storage: topic %s on %v", topic, brokers)
	return newKafkaStorage(writer, topic), nil
}

func newKafkaStorage(writer messageWriter, topic string) *KafkaStorage {
	return &KafkaStorage{
		writer:  writer,
		topic:   topic,
		timeout: 10 * time.Second,
	}
}

// Store writes one message per reading
func (ks *KafkaStorage) Store(batch plugin.Batch) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, reading := range batch {
		value, err := json.Marshal(reading)
		if err != nil {
			return fmt.Errorf("serialize reading failed: %w", err)
		}

		msg := kafka.Message{Key: []byte(reading.Asset), Value: value, Time: time.Now()}
		if t, err := readingTime(reading); err == nil {
			msg.Time = t
		}
		msgs = append(msgs, msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ks.timeout)
	defer cancel()

	if err := ks.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d messages to kafka topic %s: %w", len(msgs), ks.topic, err)
	}

	logger.Debug("published %d readings to kafka topic %s", len(msgs), ks.topic)
	return nil
}

// Close closes the writer
func (ks *KafkaStorage) Close() error {
	return ks.writer.Close()
}

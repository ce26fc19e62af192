package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// messageWriter — часть *kafka.Writer, нужная для публикации.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka публикует события загрузок в топик. Ключ сообщения — slug.
type Kafka struct {
	writer messageWriter
}

// NewKafka создаёт публикатора в topic на брокерах brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Notify публикует событие в формате JSON.
func (k *Kafka) Notify(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Slug),
		Value: value,
		Time:  ev.UploadAt,
	})
	if err != nil {
		return fmt.Errorf("ошибка публикации в Kafka: %w", err)
	}
	return nil
}

// Close сбрасывает буферы и закрывает соединения.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

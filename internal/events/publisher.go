package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Типы событий о созданном контенте.
const (
	PostCreated   = "post.created"
	AnswerCreated = "answer.created"
	ReplyCreated  = "reply.created"
)

// Event - запись о намерении уведомить об изменении контента.
type Event struct {
	Type      string    `json:"type"`
	ContentID string    `json:"content_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher публикует события контента.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// KafkaPublisher пишет события в топик Kafka. Ключ сообщения - ID контента.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher создает publisher для списка брокеров.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	slog.Info("[Events] Kafka publisher initialized",
		slog.Any("brokers", brokers), slog.String("topic", topic))
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ContentID),
		Value: value,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher только логирует события. Используется без Kafka.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	slog.Debug("[Events] content event",
		slog.String("type", e.Type),
		slog.String("content_id", e.ContentID),
		slog.String("actor_id", e.ActorID))
	return nil
}

func (LogPublisher) Close() error { return nil }

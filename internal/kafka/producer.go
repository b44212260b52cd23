package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"ms-events/internal/models"

	"github.com/segmentio/kafka-go"
)

const (
	EventCreated = "event.created"
	EventUpdated = "event.updated"
	EventDeleted = "event.deleted"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EntityMessage is the payload published for every event change.
type EntityMessage struct {
	Type       string    `json:"type"`
	EntityType string    `json:"entity_type"`
	ID         int64     `json:"id"`
	UUID       string    `json:"uuid"`
	Title      string    `json:"title,omitempty"`
	Date       string    `json:"date,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Producer struct {
	Writer MessageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &Producer{Writer: writer}
}

// PublishEventSaved streams a created or updated notification, keyed by uuid
// so changes to one event stay ordered.
func (p *Producer) PublishEventSaved(ctx context.Context, event *models.Event, created bool) error {
	msgType := EventUpdated
	if created {
		msgType = EventCreated
	}
	return p.publish(ctx, EntityMessage{
		Type:       msgType,
		EntityType: models.EventType.ID,
		ID:         event.ID,
		UUID:       event.UUID,
		Title:      event.Title(),
		Date:       event.StoredDate,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Producer) PublishEventDeleted(ctx context.Context, event *models.Event) error {
	return p.publish(ctx, EntityMessage{
		Type:       EventDeleted,
		EntityType: models.EventType.ID,
		ID:         event.ID,
		UUID:       event.UUID,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Producer) publish(ctx context.Context, msg EntityMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := msg.UUID
	if key == "" {
		key = strconv.FormatInt(msg.ID, 10)
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	})
}

func (p *Producer) Close() error {
	if p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}

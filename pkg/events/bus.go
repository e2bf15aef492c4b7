// Package events bridges processes over Kafka: the api service publishes
// realtime events it cannot deliver itself, gateway instances consume them
// for fan-out, and the messaging worker consumes them for projections.
// Messages are keyed by recipient so per-recipient order survives the hop.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/founderskick/realtime/pkg/model"
)

// Envelope wraps an event with its addressing. Origin identifies the
// producing process so a gateway can skip events it already delivered
// locally before publishing.
type Envelope struct {
	Origin      string      `json:"origin"`
	RecipientID string      `json:"recipient_id"`
	Event       model.Event `json:"event"`
}

type Producer struct {
	writer *kafka.Writer
	origin string
}

func NewProducer(brokers []string, topic, origin string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		origin: origin,
	}
}

// Publish is fire-and-forget from the caller's point of view: persistence
// already happened, so a publish failure only delays realtime visibility
// until the recipient's next fetch.
func (p *Producer) Publish(ctx context.Context, recipientID string, ev model.Event) error {
	data, err := json.Marshal(Envelope{Origin: p.origin, RecipientID: recipientID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipientID),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error { return p.writer.Close() }

// Handler processes one decoded envelope.
type Handler func(ctx context.Context, env Envelope)

type Consumer struct {
	reader *kafka.Reader
	log    *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    10e3,
			MaxBytes:    10e6,
		}),
		log: log,
	}
}

// Run consumes until ctx is cancelled. Malformed payloads are logged and
// skipped; read errors back off and retry.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("read event", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			c.log.Error("unmarshal envelope", "error", err)
			continue
		}
		handle(ctx, env)
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }

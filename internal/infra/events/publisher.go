package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"payuz/internal/domain/model"
)

// OrderStatusChanged is emitted after a webhook or check call moves an order
// to a new canonical status.
type OrderStatusChanged struct {
	EventID       string            `json:"event_id"`
	OrderID       int64             `json:"order_id"`
	Gateway       string            `json:"gateway"`
	TransactionID string            `json:"transaction_id,omitempty"`
	From          model.OrderStatus `json:"from"`
	To            model.OrderStatus `json:"to"`
	Amount        int64             `json:"amount_tiyin"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Publisher pushes order lifecycle events to interested consumers.
type Publisher interface {
	PublishStatusChange(ctx context.Context, ev OrderStatusChanged) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
	log    *zerolog.Logger
}

var _ Publisher = (*kafkaPublisher)(nil)

// NewKafkaPublisher writes order events to a single topic, keyed by order id
// so per-order ordering is preserved across partitions.
func NewKafkaPublisher(brokers []string, topic string, log *zerolog.Logger) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Debug().Msgf(msg, args...)
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf(msg, args...)
		}),
	}
	return &kafkaPublisher{writer: writer, log: log}
}

func (p *kafkaPublisher) PublishStatusChange(ctx context.Context, ev OrderStatusChanged) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", ev.OrderID)),
		Value: value,
	}
	writeCtx, cancel := context.WithTimeout(ctx, p.writer.WriteTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.log.Error().Err(err).Int64("order_id", ev.OrderID).Msg("publish order event failed")
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

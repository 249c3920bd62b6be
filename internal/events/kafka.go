package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/stellar-payment-gateway/internal/model"
)

// KafkaPublisher writes finalized events to a Kafka topic, keyed by the
// submission id so every event of one record lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka publisher requires brokers and a topic")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("kafka writer: "+msg, args...)
		}),
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka publisher created")
	return &KafkaPublisher{writer: w, topic: topic}, nil
}

func (p *KafkaPublisher) PublishFinalized(ctx context.Context, sub *model.Submission) error {
	msg, err := newMessage(sub)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write finalized event: %w", err)
	}
	return nil
}

func newMessage(sub *model.Submission) (kafka.Message, error) {
	value, err := json.Marshal(newFinalized(sub))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal finalized event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(sub.ID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("submission.finalized")},
			{Key: "state", Value: []byte(sub.LifecycleState)},
		},
	}, nil
}

// Close flushes buffered messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)

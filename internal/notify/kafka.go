package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

var _ Notifier = (*KafkaPublisher)(nil)

// KafkaPublisher delivers notification events to the dispatcher's Kafka
// topic. Events are keyed by order id so per-order ordering is
// preserved within a partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given comma-separated
// broker list and topic.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

// Notify publishes the event.
func (p *KafkaPublisher) Notify(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	})
	return errors.Wrap(err, "write message")
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

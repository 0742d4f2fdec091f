package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

const headerMessageID = "messageId"

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTopic publishes envelopes to a Kafka topic. Message attributes travel
// as record headers.
type KafkaTopic struct {
	writer  kafkaMessageWriter
	metrics *obs.Metrics
}

// NewKafkaTopic creates a synchronous writer that waits for all replicas.
func NewKafkaTopic(brokers []string, topic string, metrics *obs.Metrics) *KafkaTopic {
	return &KafkaTopic{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
		metrics: metrics,
	}
}

// NewKafkaTopicWith is only for tests to inject a fake writer.
func NewKafkaTopicWith(w kafkaMessageWriter, metrics *obs.Metrics) *KafkaTopic {
	return &KafkaTopic{writer: w, metrics: metrics}
}

func (t *KafkaTopic) Publish(ctx context.Context, env envelope.Envelope) (string, error) {
	body, err := envelope.Encode(env)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	headers := []kafka.Header{{Key: headerMessageID, Value: []byte(id)}}
	for k, v := range env.Attributes() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := t.writer.WriteMessages(ctx, kafka.Message{Key: []byte(id), Value: body, Headers: headers}); err != nil {
		return "", fmt.Errorf("kafka publish: %w", err)
	}
	t.metrics.EventPublished(string(env.EventType))
	return id, nil
}

func (t *KafkaTopic) Close() error { return t.writer.Close() }

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRelay consumes a Kafka topic and feeds every record into a Fanout.
// An offset is committed only after all matching subscriptions accepted the
// record, so a crash replays it. A record that still fails after
// maxDeliveries relays is dead-lettered and committed.
type KafkaRelay struct {
	reader        kafkaMessageReader
	fanout        *Fanout
	maxDeliveries int

	mu   sync.Mutex
	dead []DeadLetter
}

// DeadLetter is a record the relay gave up on.
type DeadLetter struct {
	Message
	Partition  int
	Offset     int64
	Deliveries int
	Err        string
}

// NewKafkaRelay joins the consumer group prefix+"-relay". maxDeliveries <= 0
// means a single delivery.
func NewKafkaRelay(brokers []string, topic, groupPrefix string, f *Fanout, maxDeliveries int) *KafkaRelay {
	return NewKafkaRelayWith(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupPrefix + "-relay",
		MinBytes: 1,
		MaxBytes: 10e6,
	}), f, maxDeliveries)
}

// NewKafkaRelayWith is only for tests to inject a fake reader.
func NewKafkaRelayWith(r kafkaMessageReader, f *Fanout, maxDeliveries int) *KafkaRelay {
	if maxDeliveries <= 0 {
		maxDeliveries = 1
	}
	return &KafkaRelay{reader: r, fanout: f, maxDeliveries: maxDeliveries}
}

// DeadLetters returns a copy of the records the relay gave up on, oldest first.
func (r *KafkaRelay) DeadLetters() []DeadLetter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeadLetter(nil), r.dead...)
}

// MessageFromKafka converts a record into a Message.
func MessageFromKafka(m kafka.Message) Message {
	msg := Message{Body: m.Value, Attributes: make(map[string]string, len(m.Headers))}
	for _, h := range m.Headers {
		if h.Key == headerMessageID {
			msg.ID = string(h.Value)
			continue
		}
		msg.Attributes[h.Key] = string(h.Value)
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	}
	return msg
}

// Run relays records until ctx is done. A failed delivery is retried after
// retryDelay without committing.
func (r *KafkaRelay) Run(ctx context.Context, retryDelay time.Duration) error {
	defer r.reader.Close()
	for {
		m, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		msg := MessageFromKafka(m)
		for i := 1; ; i++ {
			err := r.fanout.Deliver(ctx, msg)
			if err == nil {
				break
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			if i >= r.maxDeliveries {
				r.deadLetter(m, msg, i, err)
				break
			}
			obs.Logger.Warn("kafka_relay_retry", "offset", m.Offset, "partition", m.Partition, "delivery", i, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
		}
		if err := r.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (r *KafkaRelay) deadLetter(m kafka.Message, msg Message, deliveries int, cause error) {
	r.mu.Lock()
	r.dead = append(r.dead, DeadLetter{Message: msg, Partition: m.Partition, Offset: m.Offset, Deliveries: deliveries, Err: cause.Error()})
	r.mu.Unlock()
	r.fanout.metrics.MessageDeadLettered()
	obs.Logger.Error("kafka_relay_dead_lettered", "message_id", msg.ID, "offset", m.Offset, "partition", m.Partition, "deliveries", deliveries, "error", cause)
}

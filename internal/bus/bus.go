// Package bus fans published envelopes out to filtered subscriptions.
//
// A topic turns an envelope into a Message carrying the eventType attribute.
// Fanout hands every Message to each Subscription whose FilterPolicy accepts
// its attributes. Topics are in-process (LocalTopic), SNS (SNSTopic) or Kafka
// (KafkaTopic, fed back into a Fanout by KafkaRelay).
package bus

import (
	"context"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
)

// Message is one delivery of a published envelope.
type Message struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

// Envelope decodes the message body.
func (m Message) Envelope() (envelope.Envelope, error) { return envelope.Decode(m.Body) }

// Handler consumes delivered messages. A non-nil error asks for redelivery.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// FilterPolicy is an attribute allow-list: every named attribute must be
// present and equal to one of the listed values. An empty policy matches
// everything.
type FilterPolicy map[string][]string

// Matches reports whether attrs satisfy the policy.
func (p FilterPolicy) Matches(attrs map[string]string) bool {
	for name, allowed := range p {
		v, ok := attrs[name]
		if !ok {
			return false
		}
		hit := false
		for _, a := range allowed {
			if a == v {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// EventTypes is a policy accepting only the given event types.
func EventTypes(types ...envelope.Type) FilterPolicy {
	vals := make([]string, 0, len(types))
	for _, t := range types {
		vals = append(vals, string(t))
	}
	return FilterPolicy{envelope.AttrEventType: vals}
}

// Subscription binds a handler to a topic. MaxAttempts bounds redelivery to a
// direct handler; queue-backed handlers usually accept on the first attempt.
type Subscription struct {
	Name        string
	Filter      FilterPolicy
	Handler     Handler
	MaxAttempts int
}

// Publisher publishes an envelope and returns the transport message id.
type Publisher interface {
	Publish(ctx context.Context, env envelope.Envelope) (string, error)
}

package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// LocalTopic is an in-process topic. Publish acknowledges immediately and
// delivery to subscribers happens in the background.
type LocalTopic struct {
	fanout  *Fanout
	metrics *obs.Metrics
}

func NewLocalTopic(f *Fanout, metrics *obs.Metrics) *LocalTopic {
	return &LocalTopic{fanout: f, metrics: metrics}
}

func (t *LocalTopic) Publish(ctx context.Context, env envelope.Envelope) (string, error) {
	body, err := envelope.Encode(env)
	if err != nil {
		return "", err
	}
	msg := Message{ID: uuid.NewString(), Body: body, Attributes: env.Attributes()}
	t.fanout.Dispatch(ctx, msg)
	t.metrics.EventPublished(string(env.EventType))
	return msg.ID, nil
}

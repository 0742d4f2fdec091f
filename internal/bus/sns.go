package bus

import (
	"context"
	"fmt"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// SNSAPI is the subset of *sns.Client used by SNSTopic.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTopic publishes envelopes to an SNS topic. Filtering and delivery are
// left to SNS subscriptions.
type SNSTopic struct {
	client   SNSAPI
	topicARN string
	metrics  *obs.Metrics
}

func NewSNSTopic(client SNSAPI, topicARN string, metrics *obs.Metrics) *SNSTopic {
	return &SNSTopic{client: client, topicARN: topicARN, metrics: metrics}
}

func (t *SNSTopic) Publish(ctx context.Context, env envelope.Envelope) (string, error) {
	body, err := envelope.Encode(env)
	if err != nil {
		return "", err
	}
	attrs := make(map[string]snstypes.MessageAttributeValue)
	for k, v := range env.Attributes() {
		attrs[k] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	out, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(t.topicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	t.metrics.EventPublished(string(env.EventType))
	return aws.ToString(out.MessageId), nil
}

// MessageFromSNS converts an SNS notification into a Message. String
// attributes arrive as {"Type":"String","Value":"..."} objects.
func MessageFromSNS(e awsevents.SNSEntity) Message {
	attrs := make(map[string]string, len(e.MessageAttributes))
	for name, raw := range e.MessageAttributes {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := m["Value"].(string); ok {
			attrs[name] = v
		}
	}
	return Message{ID: e.MessageID, Body: []byte(e.Message), Attributes: attrs}
}

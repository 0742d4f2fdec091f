// Package lambdafn adapts the service handlers to AWS Lambda event sources.
package lambdafn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ecommerce-service/internal/api"
	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/consumers"
	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// HeaderUserEmail carries the e-mail of the acting user.
const HeaderUserEmail = "X-User-Email"

// InvocationID returns the Lambda request id of the running invocation.
func InvocationID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

func header(h map[string]string, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ToAPIRequest converts an API Gateway proxy event.
func ToAPIRequest(ctx context.Context, ev awsevents.APIGatewayProxyRequest) api.Request {
	return api.Request{
		Method:       ev.HTTPMethod,
		Resource:     ev.Resource,
		PathParams:   ev.PathParameters,
		Query:        ev.QueryStringParameters,
		Body:         []byte(ev.Body),
		RequestID:    InvocationID(ctx),
		APIRequestID: ev.RequestContext.RequestID,
		Principal:    header(ev.Headers, HeaderUserEmail),
	}
}

// APIGateway serves API Gateway proxy events with h. Handler errors fail the
// invocation.
func APIGateway(h api.Handler) func(context.Context, awsevents.APIGatewayProxyRequest) (awsevents.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, ev awsevents.APIGatewayProxyRequest) (awsevents.APIGatewayProxyResponse, error) {
		req := ToAPIRequest(ctx, ev)
		obs.Logger.Info("api_gateway_request", "api_request_id", req.APIRequestID, "request_id", req.RequestID)
		resp, err := h.Handle(ctx, req)
		if err != nil {
			obs.Logger.Error("api_request_failed", "api_request_id", req.APIRequestID, "request_id", req.RequestID, "error", err)
			return awsevents.APIGatewayProxyResponse{}, err
		}
		return awsevents.APIGatewayProxyResponse{
			StatusCode: resp.StatusCode,
			Headers:    map[string]string{"Content-Type": resp.ContentType},
			Body:       string(resp.Body),
		}, nil
	}
}

// SNS handles every record of an SNS notification concurrently and fails the
// invocation if any record fails, so SNS retries the delivery.
func SNS(h bus.Handler) func(context.Context, awsevents.SNSEvent) error {
	return func(ctx context.Context, ev awsevents.SNSEvent) error {
		var g errgroup.Group
		for _, rec := range ev.Records {
			msg := bus.MessageFromSNS(rec.SNS)
			g.Go(func() error { return h.Handle(ctx, msg) })
		}
		return g.Wait()
	}
}

// SQS handles queue records carrying SNS notifications. Failed records are
// reported as batch item failures so only they return to the queue; the
// queue's redrive policy moves them to the dead-letter queue eventually.
func SQS(h bus.Handler) func(context.Context, awsevents.SQSEvent) (awsevents.SQSEventResponse, error) {
	return func(ctx context.Context, ev awsevents.SQSEvent) (awsevents.SQSEventResponse, error) {
		var (
			resp awsevents.SQSEventResponse
			g    errgroup.Group
		)
		failed := make([]bool, len(ev.Records))
		for i, rec := range ev.Records {
			g.Go(func() error {
				if err := handleSQSRecord(ctx, h, rec); err != nil {
					obs.Logger.Warn("sqs_record_failed", "message_id", rec.MessageId, "error", err)
					failed[i] = true
				}
				return nil
			})
		}
		_ = g.Wait()
		for i, f := range failed {
			if f {
				resp.BatchItemFailures = append(resp.BatchItemFailures, awsevents.SQSBatchItemFailure{ItemIdentifier: ev.Records[i].MessageId})
			}
		}
		return resp, nil
	}
}

func handleSQSRecord(ctx context.Context, h bus.Handler, rec awsevents.SQSMessage) error {
	var note awsevents.SNSEntity
	if err := json.Unmarshal([]byte(rec.Body), &note); err != nil {
		return fmt.Errorf("decode sns notification: %w", err)
	}
	return h.Handle(ctx, bus.MessageFromSNS(note))
}

// ProductEvents is the directly invoked product event recorder.
func ProductEvents(r *consumers.ProductEventRecorder) func(context.Context, envelope.ProductEvent) (consumers.ProductEventReply, error) {
	return func(ctx context.Context, ev envelope.ProductEvent) (consumers.ProductEventReply, error) {
		obs.Logger.Info("product_event_invoked", "request_id", InvocationID(ctx), "origin_request_id", ev.RequestID)
		return r.Store(ctx, ev)
	}
}

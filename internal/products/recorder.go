package products

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// Recorder is told about catalogue changes. Record never reports failure:
// callers do not wait for the event to be stored and it may be lost.
type Recorder interface {
	Record(ctx context.Context, ev envelope.ProductEvent)
}

// NopRecorder drops every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, envelope.ProductEvent) {}

// LambdaAPI is the subset of *lambda.Client used by LambdaRecorder.
type LambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaRecorder invokes the product events function asynchronously
// (InvocationType Event). Lambda queues the event and replies 202.
type LambdaRecorder struct {
	client   LambdaAPI
	function string
}

func NewLambdaRecorder(client LambdaAPI, function string) *LambdaRecorder {
	return &LambdaRecorder{client: client, function: function}
}

func (r *LambdaRecorder) Record(ctx context.Context, ev envelope.ProductEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		obs.Logger.Error("product_event_encode_failed", "product_id", ev.ProductID, "error", err)
		return
	}
	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(r.function),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		obs.Logger.Error("product_event_invoke_failed", "function", r.function, "product_id", ev.ProductID, "error", err)
		return
	}
	obs.Logger.Info("product_event_sent", "function", r.function, "status", out.StatusCode, "request_id", ev.RequestID)
}

// AsyncRecorder runs another Recorder in the background, detached from the
// caller's cancellation.
type AsyncRecorder struct {
	next Recorder
	wg   sync.WaitGroup
}

func NewAsyncRecorder(next Recorder) *AsyncRecorder {
	return &AsyncRecorder{next: next}
}

func (r *AsyncRecorder) Record(ctx context.Context, ev envelope.ProductEvent) {
	dctx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.next.Record(dctx, ev)
	}()
}

// Wait blocks until every started recording has returned.
func (r *AsyncRecorder) Wait() { r.wg.Wait() }


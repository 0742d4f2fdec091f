package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// ProductEventReply is returned to the invoker of the product events function.
type ProductEventReply struct {
	ProductEventCreated bool   `json:"productEventCreated"`
	Message             string `json:"message"`
}

// ProductEventRecorder archives product events under #product_<code>.
type ProductEventRecorder struct {
	events  EventWriter
	now     func() time.Time
	metrics *obs.Metrics
}

func NewProductEventRecorder(events EventWriter, metrics *obs.Metrics) *ProductEventRecorder {
	return &ProductEventRecorder{
		events:  store.NewPrefixGuard[model.EventRecord](events, model.ProductEventPrefix),
		now:     time.Now,
		metrics: metrics,
	}
}

// Store writes ev to the Events table.
func (r *ProductEventRecorder) Store(ctx context.Context, ev envelope.ProductEvent) (ProductEventReply, error) {
	at := r.now()
	pk, sk := model.ProductEventKey(ev.ProductCode, string(ev.EventType), at)
	rec := model.EventRecord{
		PK:        pk,
		SK:        sk,
		TTL:       model.ExpiryFrom(at),
		Email:     ev.Email,
		CreatedAt: at.UnixMilli(),
		RequestID: ev.RequestID,
		EventType: string(ev.EventType),
		Info:      model.EventInfo{ProductID: ev.ProductID, Price: ev.ProductPrice},
	}
	if _, err := r.events.Create(ctx, rec); err != nil {
		return ProductEventReply{}, fmt.Errorf("archive product event: %w", err)
	}
	r.metrics.EventArchived(string(ev.EventType))
	obs.Logger.Info("product_event_archived", "product_id", ev.ProductID, "event_type", ev.EventType, "request_id", ev.RequestID)
	return ProductEventReply{ProductEventCreated: true, Message: "Product event created"}, nil
}

// Record implements products.Recorder for in-process use. Failures are
// logged and dropped.
func (r *ProductEventRecorder) Record(ctx context.Context, ev envelope.ProductEvent) {
	if _, err := r.Store(ctx, ev); err != nil {
		obs.Logger.Error("product_event_archive_failed", "product_id", ev.ProductID, "error", err)
	}
}

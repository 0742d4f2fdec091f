// Package consumers holds the subscribers of order and product events. Each
// performs one side effect: logging, archiving or notifying.
package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/notify"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// EventWriter stores archived events.
type EventWriter = store.Writer[model.EventRecord]

// EventLogger logs every delivered message and stores nothing.
type EventLogger struct{}

func (EventLogger) Handle(_ context.Context, msg bus.Message) error {
	obs.Logger.Info("order_event_received",
		"message_id", msg.ID,
		"event_type", msg.Attributes[envelope.AttrEventType],
		"body", string(msg.Body),
	)
	return nil
}

// OrderArchiver records ORDER_* events in the Events table with a short TTL.
type OrderArchiver struct {
	events  EventWriter
	now     func() time.Time
	metrics *obs.Metrics
}

// NewOrderArchiver writes through a guard that only admits order-scoped
// partitions.
func NewOrderArchiver(events EventWriter, metrics *obs.Metrics) *OrderArchiver {
	return &OrderArchiver{
		events:  store.NewPrefixGuard[model.EventRecord](events, model.OrderEventPrefix),
		now:     time.Now,
		metrics: metrics,
	}
}

func (a *OrderArchiver) Handle(ctx context.Context, msg bus.Message) error {
	env, err := msg.Envelope()
	if err != nil {
		return err
	}
	ev, err := env.OrderEvent()
	if err != nil {
		return err
	}
	obs.Logger.Info("order_event_archiving", "message_id", msg.ID, "order_id", ev.OrderID, "event_type", env.EventType)

	at := a.now()
	pk, sk := model.OrderEventKey(ev.OrderID, string(env.EventType), at)
	rec := model.EventRecord{
		PK:        pk,
		SK:        sk,
		TTL:       model.ExpiryFrom(at),
		Email:     ev.Email,
		CreatedAt: at.UnixMilli(),
		RequestID: ev.RequestID,
		EventType: string(env.EventType),
		Info: model.EventInfo{
			OrderID:      ev.OrderID,
			ProductCodes: ev.ProductCodes,
			MessageID:    msg.ID,
		},
	}
	if _, err := a.events.Create(ctx, rec); err != nil {
		return fmt.Errorf("archive order event %s: %w", msg.ID, err)
	}
	a.metrics.EventArchived(string(env.EventType))
	return nil
}

// OrderEmailSubject is the subject of the order confirmation e-mail.
const OrderEmailSubject = "We received your order!"

// OrderNotifier e-mails the customer of each ORDER_CREATED event.
type OrderNotifier struct {
	mailer notify.Mailer
}

func NewOrderNotifier(m notify.Mailer) *OrderNotifier { return &OrderNotifier{mailer: m} }

// OrderEmail renders the confirmation e-mail of ev.
func OrderEmail(ev envelope.OrderEvent) notify.Email {
	total := decimal.NewFromFloat(ev.Billing.TotalPrice).StringFixed(2)
	return notify.Email{
		To:      ev.Email,
		Subject: OrderEmailSubject,
		Body:    fmt.Sprintf("We received your order number %s, totalling $ %s", ev.OrderID, total),
	}
}

func (n *OrderNotifier) Handle(ctx context.Context, msg bus.Message) error {
	env, err := msg.Envelope()
	if err != nil {
		return err
	}
	ev, err := env.OrderEvent()
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, OrderEmail(ev)); err != nil {
		return err
	}
	obs.Logger.Info("order_email_sent", "message_id", msg.ID, "order_id", ev.OrderID)
	return nil
}

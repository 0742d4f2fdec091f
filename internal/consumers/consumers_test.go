package consumers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/notify"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

func orderMessage(t *testing.T, typ envelope.Type) bus.Message {
	t.Helper()
	o := model.Order{
		PK: "a@b.com", SK: "o-1",
		Billing:  model.Billing{Payment: model.PaymentCash, TotalPrice: 25},
		Products: []model.OrderProduct{{Code: "A", Price: 10}, {Code: "B", Price: 15}},
	}
	env, err := envelope.Wrap(typ, envelope.NewOrderEvent(o, "req-1"))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	body, _ := envelope.Encode(env)
	return bus.Message{ID: "msg-1", Body: body, Attributes: env.Attributes()}
}

func TestOrderArchiverWritesExpiringRecord(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	events := store.NewTable[model.EventRecord]("events", store.NewMemoryBackend[model.EventRecord](),
		store.WithClock(func() time.Time { return at }))
	a := NewOrderArchiver(events, nil)
	a.now = func() time.Time { return at }
	if err := a.Handle(context.Background(), orderMessage(t, envelope.OrderCreated)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	recs, _ := events.Query(context.Background(), "#order_o-1")
	if len(recs) != 1 {
		t.Fatalf("records: %+v", recs)
	}
	r := recs[0]
	if r.SK != "ORDER_CREATED#1700000000123" || r.TTL != at.Unix()+300 || r.CreatedAt != at.UnixMilli() {
		t.Fatalf("keys/ttl: %+v", r)
	}
	if r.Email != "a@b.com" || r.RequestID != "req-1" || r.EventType != "ORDER_CREATED" {
		t.Fatalf("fields: %+v", r)
	}
	if r.Info.OrderID != "o-1" || r.Info.MessageID != "msg-1" || len(r.Info.ProductCodes) != 2 {
		t.Fatalf("info: %+v", r.Info)
	}
}

func TestOrderArchiverRejectsMalformed(t *testing.T) {
	events := store.NewTable[model.EventRecord]("events", store.NewMemoryBackend[model.EventRecord]())
	a := NewOrderArchiver(events, nil)
	err := a.Handle(context.Background(), bus.Message{ID: "x", Body: []byte("garbage")})
	if !errors.Is(err, envelope.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

type sentMail struct{ emails []notify.Email }

func (s *sentMail) Send(_ context.Context, e notify.Email) error {
	s.emails = append(s.emails, e)
	return nil
}

func TestOrderNotifierSendsOneEmail(t *testing.T) {
	m := &sentMail{}
	if err := NewOrderNotifier(m).Handle(context.Background(), orderMessage(t, envelope.OrderCreated)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(m.emails) != 1 {
		t.Fatalf("emails: %d", len(m.emails))
	}
	e := m.emails[0]
	if e.To != "a@b.com" || e.Subject != OrderEmailSubject {
		t.Fatalf("email: %+v", e)
	}
	if !strings.Contains(e.Body, "o-1") || !strings.Contains(e.Body, "25.00") {
		t.Fatalf("body: %q", e.Body)
	}
}

func TestEventLoggerAcceptsEverything(t *testing.T) {
	if err := (EventLogger{}).Handle(context.Background(), bus.Message{ID: "m", Body: []byte("anything")}); err != nil {
		t.Fatalf("logger: %v", err)
	}
}

func TestProductEventRecorder(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	events := store.NewTable[model.EventRecord]("events", store.NewMemoryBackend[model.EventRecord](),
		store.WithClock(func() time.Time { return at }))
	r := NewProductEventRecorder(events, nil)
	r.now = func() time.Time { return at }
	reply, err := r.Store(context.Background(), envelope.ProductEvent{
		RequestID: "req", EventType: envelope.ProductUpdated, ProductID: "p1", ProductCode: "COD1", ProductPrice: 12.5, Email: "admin@x.com",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !reply.ProductEventCreated || reply.Message != "Product event created" {
		t.Fatalf("reply: %+v", reply)
	}
	recs, _ := events.Query(context.Background(), "#product_COD1")
	if len(recs) != 1 || recs[0].Info.ProductID != "p1" || recs[0].Info.Price != 12.5 || recs[0].SK != "PRODUCT_UPDATED#1700000000000" {
		t.Fatalf("records: %+v", recs)
	}
}

package envelope

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/fairyhunter13/ecommerce-service/internal/model"
)

func TestWrapOrderEventKeepsDataAsString(t *testing.T) {
	o := model.Order{
		PK: "a@b.com", SK: "o-1",
		Billing:  model.Billing{Payment: model.PaymentCash, TotalPrice: 25},
		Shipping: model.Shipping{Type: model.ShippingUrgent, Carrier: model.CarrierFedex},
		Products: []model.OrderProduct{{Code: "A", Price: 10}, {Code: "B", Price: 15}},
	}
	env, err := Wrap(OrderCreated, NewOrderEvent(o, "req-1"))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	body, err := Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["eventType"] != "ORDER_CREATED" {
		t.Fatalf("eventType: %v", raw["eventType"])
	}
	if _, ok := raw["data"].(string); !ok {
		t.Fatalf("data must be a JSON string, got %T", raw["data"])
	}

	back, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, err := back.OrderEvent()
	if err != nil {
		t.Fatalf("order event: %v", err)
	}
	if ev.Email != "a@b.com" || ev.OrderID != "o-1" || ev.RequestID != "req-1" {
		t.Fatalf("event fields: %+v", ev)
	}
	if len(ev.ProductCodes) != 2 || ev.ProductCodes[0] != "A" || ev.Billing.TotalPrice != 25 {
		t.Fatalf("event body: %+v", ev)
	}
	if got := back.Attributes()[AttrEventType]; got != "ORDER_CREATED" {
		t.Fatalf("attributes: %v", back.Attributes())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "not json", `{"data":"{}"}`} {
		if _, err := Decode([]byte(body)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", body, err)
		}
	}
	env := Envelope{EventType: OrderCreated, Data: "{"}
	if _, err := env.OrderEvent(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("bad payload: %v", err)
	}
}

func TestNewProductEvent(t *testing.T) {
	p := model.Product{ID: "p1", Code: "COD1", Price: 9.5}
	ev := NewProductEvent(ProductUpdated, p, "admin@x.com", "req-9")
	if ev.ProductID != "p1" || ev.ProductCode != "COD1" || ev.ProductPrice != 9.5 || ev.EventType != ProductUpdated {
		t.Fatalf("product event: %+v", ev)
	}
	b, _ := json.Marshal(ev)
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	for _, k := range []string{"requestId", "eventType", "productId", "productCode", "productPrice", "email"} {
		if _, ok := raw[k]; !ok {
			t.Fatalf("missing field %s in %s", k, b)
		}
	}
}

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/ecommerce-service/internal/api"
	"github.com/fairyhunter13/ecommerce-service/internal/config"
	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/notify"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/stack"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (m *captureMailer) Send(_ context.Context, e notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

func (m *captureMailer) emails() []notify.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Email(nil), m.sent...)
}

func newStack(t *testing.T, cfg config.Config, opts ...stack.Option) *stack.Stack {
	t.Helper()
	obs.InitLogger("error")
	st, err := stack.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	st.Start(context.Background())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func memoryConfig() config.Config {
	cfg := config.Load()
	cfg.StoreBackend = config.StoreMemory
	cfg.BusBackend = config.BusLocal
	return cfg
}

func call(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("X-User-Email", "admin@shop.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func createProduct(t *testing.T, h http.Handler, name, code string, price float64) model.Product {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"productName": name, "code": code, "price": price})
	w := call(t, h, http.MethodPost, "/products", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", w.Code, w.Body.String())
	}
	var p model.Product
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil || p.ID == "" {
		t.Fatalf("decode product: %v %s", err, w.Body.String())
	}
	return p
}

func drain(t *testing.T, st *stack.Stack) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !st.Drain(ctx) {
		t.Fatalf("drain timeout")
	}
}

func TestIntegration_OrderLifecycle(t *testing.T) {
	mailer := &captureMailer{}
	st := newStack(t, memoryConfig(), stack.WithMailer(mailer))
	h := st.Handler()

	p1 := createProduct(t, h, "Keyboard", "KB-1", 10)
	p2 := createProduct(t, h, "Mouse", "MS-1", 15)

	// Scenario 1: every product resolves.
	w := call(t, h, http.MethodPost, "/orders", `{"email":"a@b.com","productIds":["`+p1.ID+`","`+p2.ID+`"],"payment":"CASH","shipping":{"type":"URGENT","carrier":"FEDEX"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	var first api.OrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if first.Billing.TotalPrice != 25 || first.Email != "a@b.com" || first.ID == "" {
		t.Fatalf("order: %+v", first)
	}
	if first.Shipping.Type != model.ShippingUrgent || first.Shipping.Carrier != model.CarrierFedex || len(first.Products) != 2 {
		t.Fatalf("order: %+v", first)
	}

	// Scenario 2: one product is missing.
	w = call(t, h, http.MethodPost, "/orders", `{"email":"a@b.com","productIds":["`+p1.ID+`","missing"],"payment":"CASH"}`)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "not found") {
		t.Fatalf("missing product: %d %s", w.Code, w.Body.String())
	}

	// Scenario 3: deleting an unknown order.
	w = call(t, h, http.MethodDelete, "/orders?email=a@b.com&orderId=nope", "")
	if w.Code != http.StatusNotFound || w.Body.String() != "Order not found" {
		t.Fatalf("delete unknown: %d %s", w.Code, w.Body.String())
	}

	// Scenario 4: list after two creates.
	w = call(t, h, http.MethodPost, "/orders", `{"email":"a@b.com","productIds":["`+p2.ID+`"],"payment":"DEBIT_CARD"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("second order: %d %s", w.Code, w.Body.String())
	}
	var second api.OrderResponse
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	w = call(t, h, http.MethodGet, "/orders?email=a@b.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	if strings.Contains(w.Body.String(), `"products"`) {
		t.Fatalf("list view carries products: %s", w.Body.String())
	}
	var list []api.OrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("list: %v %s", err, w.Body.String())
	}
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Fatalf("list ids: %v", ids)
	}

	// Product changes never reach placed orders.
	w = call(t, h, http.MethodPut, "/products/"+p1.ID, `{"productName":"Keyboard","code":"KB-1","price":99}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update product: %d %s", w.Code, w.Body.String())
	}
	w = call(t, h, http.MethodGet, "/orders?email=a@b.com&orderId="+first.ID, "")
	var again api.OrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &again); err != nil || again.Billing.TotalPrice != 25 || len(again.Products) != 2 || again.Products[0].Price != 10 {
		t.Fatalf("order after price change: %v %s", err, w.Body.String())
	}

	w = call(t, h, http.MethodDelete, "/orders?email=a@b.com&orderId="+first.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	drain(t, st)

	// Only ORDER_CREATED reaches the archive and the e-mail queue.
	all, err := st.Events.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("scan events: %v", err)
	}
	var orderEvents, productEvents int
	for _, ev := range all {
		switch {
		case strings.HasPrefix(ev.PK, model.OrderEventPrefix):
			orderEvents++
			if ev.EventType != string(envelope.OrderCreated) {
				t.Fatalf("archived %s", ev.EventType)
			}
		case strings.HasPrefix(ev.PK, model.ProductEventPrefix):
			productEvents++
			if ev.Email != "admin@shop.com" {
				t.Fatalf("product event actor: %+v", ev)
			}
		}
	}
	if orderEvents != 2 {
		t.Fatalf("archived order events: %d", orderEvents)
	}
	// two creates and one update
	if productEvents != 3 {
		t.Fatalf("archived product events: %d", productEvents)
	}

	sent := mailer.emails()
	if len(sent) != 2 {
		t.Fatalf("emails: %+v", sent)
	}
	for _, e := range sent {
		if e.To != "a@b.com" || e.Subject != "We received your order!" {
			t.Fatalf("email: %+v", e)
		}
	}
	if st.Manager.DeadLetterCount() != 0 {
		t.Fatalf("dead letters: %d", st.Manager.DeadLetterCount())
	}
}

type flakyMailer struct{}

func (flakyMailer) Send(context.Context, notify.Email) error { return context.DeadlineExceeded }

func TestIntegration_FailedEmailsDeadLettered(t *testing.T) {
	cfg := memoryConfig()
	cfg.QueueMaxReceiveCount = 2
	cfg.QueueRetryDelay = 10 * time.Millisecond
	st := newStack(t, cfg, stack.WithMailer(flakyMailer{}))
	h := st.Handler()

	p := createProduct(t, h, "Cable", "CB-1", 2.5)
	w := call(t, h, http.MethodPost, "/orders", `{"email":"c@d.com","productIds":["`+p.ID+`"],"payment":"CREDIT_CARD"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	drain(t, st)

	dead := st.Manager.DeadLetters()
	if len(dead) != 1 || dead[0].ReceiveCount != 2 {
		t.Fatalf("dead letters: %+v", dead)
	}
	w = call(t, h, http.MethodGet, "/debug/dead-letters", "")
	if !strings.Contains(w.Body.String(), `"receive_count":2`) {
		t.Fatalf("dead letters endpoint: %s", w.Body.String())
	}
}

func TestIntegration_PebbleSurvivesRestart(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = config.StorePebble
	cfg.PebbleDir = t.TempDir()

	obs.InitLogger("error")
	st, err := stack.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	st.Start(context.Background())
	p := createProduct(t, st.Handler(), "Monitor", "MN-1", 120)
	drain(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again := newStack(t, cfg)
	w := call(t, again.Handler(), http.MethodGet, "/products/"+p.ID, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"code":"MN-1"`) {
		t.Fatalf("product after restart: %d %s", w.Code, w.Body.String())
	}
}

func TestIntegration_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "cassandra"
	if _, err := stack.New(context.Background(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}

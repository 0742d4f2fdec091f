// Package integration runs black-box checks against a running server. Set
// BASE_URL (for example http://localhost:8080) to enable them.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL(tb testing.TB) string {
	tb.Helper()
	v := os.Getenv("BASE_URL")
	if v == "" {
		tb.Skip("BASE_URL not set")
	}
	return strings.TrimRight(v, "/")
}

func waitReady(t *testing.T) string {
	t.Helper()
	u := baseURL(t)
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(u + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			return u
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("service not ready")
	return ""
}

type product struct {
	ID          string  `json:"id"`
	ProductName string  `json:"productName"`
	Code        string  `json:"code"`
	Price       float64 `json:"price"`
}

type order struct {
	Email     string `json:"email"`
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Products  []struct {
		Code  string  `json:"code"`
		Price float64 `json:"price"`
	} `json:"products"`
	Billing struct {
		Payment    string  `json:"payment"`
		TotalPrice float64 `json:"totalPrice"`
	} `json:"billing"`
}

func send(t *testing.T, method, url, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	r, _ := http.NewRequest(method, url, rd)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.Header.Set("X-User-Email", "it@example.com")
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func seedProduct(t *testing.T, u, code string, price float64) product {
	t.Helper()
	resp, b := send(t, http.MethodPost, u+"/products", "application/json",
		fmt.Sprintf(`{"productName":"it %s","code":"%s","price":%g}`, code, code, price))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed product: %d %s", resp.StatusCode, b)
	}
	var p product
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func uniqueEmail() string { return fmt.Sprintf("it-%d@example.com", time.Now().UnixNano()) }

func TestIntegration_OpenAPIServed(t *testing.T) {
	u := waitReady(t)
	resp, err := http.Get(u + "/openapi.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestIntegration_DocsServed(t *testing.T) {
	u := waitReady(t)
	resp, err := http.Get(u + "/docs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := make([]byte, 1024)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "swagger-ui") {
		t.Fatalf("expected swagger-ui in docs page")
	}
}

func TestIntegration_ProductCRUD(t *testing.T) {
	u := waitReady(t)
	p := seedProduct(t, u, "crud", 3.5)

	resp, b := send(t, http.MethodGet, u+"/products/"+p.ID, "", "")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("get: %d %s", resp.StatusCode, b)
	}
	resp, b = send(t, http.MethodPut, u+"/products/"+p.ID, "application/json", `{"productName":"renamed","code":"crud","price":4}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), `"renamed"`) {
		t.Fatalf("put: %d %s", resp.StatusCode, b)
	}
	resp, _ = send(t, http.MethodDelete, u+"/products/"+p.ID, "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, b = send(t, http.MethodGet, u+"/products/"+p.ID, "", "")
	if resp.StatusCode != http.StatusNotFound || string(b) != "Product not found" {
		t.Fatalf("after delete: %d %s", resp.StatusCode, b)
	}
}

func TestIntegration_OrderFlow(t *testing.T) {
	u := waitReady(t)
	p1 := seedProduct(t, u, "o1", 10)
	p2 := seedProduct(t, u, "o2", 15)
	email := uniqueEmail()

	resp, b := send(t, http.MethodPost, u+"/orders", "application/json",
		fmt.Sprintf(`{"email":"%s","productIds":["%s","%s"],"payment":"CASH","shipping":{"type":"URGENT","carrier":"FEDEX"}}`, email, p1.ID, p2.ID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, b)
	}
	var o order
	if err := json.Unmarshal(b, &o); err != nil || o.Billing.TotalPrice != 25 {
		t.Fatalf("order: %v %s", err, b)
	}

	resp, b = send(t, http.MethodPost, u+"/orders", "application/json",
		fmt.Sprintf(`{"email":"%s","productIds":["%s","missing"],"payment":"CASH"}`, email, p1.ID))
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(b), "not found") {
		t.Fatalf("missing product: %d %s", resp.StatusCode, b)
	}

	resp, b = send(t, http.MethodGet, u+"/orders?email="+email, "", "")
	var list []order
	if err := json.Unmarshal(b, &list); err != nil || resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: %d %s", resp.StatusCode, b)
	}

	resp, _ = send(t, http.MethodDelete, u+"/orders?email="+email+"&orderId="+o.ID, "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, b = send(t, http.MethodDelete, u+"/orders?email="+email+"&orderId="+o.ID, "", "")
	if resp.StatusCode != http.StatusNotFound || string(b) != "Order not found" {
		t.Fatalf("second delete: %d %s", resp.StatusCode, b)
	}
}

func TestIntegration_ValidationErrors(t *testing.T) {
	u := waitReady(t)
	cases := []string{
		`{"email":"a@b.com","productIds":[],"payment":"CASH"}`,
		`{"email":"a@b.com","productIds":["x"],"payment":"BITCOIN"}`,
		`{"email":"a@b.com","productIds":["x"],"payment":"CASH","sk":"mine"}`,
		`{"productIds":["x"],"payment":"CASH"}`,
		`not json`,
	}
	for _, body := range cases {
		resp, b := send(t, http.MethodPost, u+"/orders", "application/json", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", body, resp.StatusCode, b)
		}
	}
}

func TestIntegration_UnsupportedMediaType(t *testing.T) {
	u := waitReady(t)
	for _, ct := range []string{"", "text/plain"} {
		resp, _ := send(t, http.MethodPost, u+"/orders", ct, `{}`)
		if resp.StatusCode != http.StatusUnsupportedMediaType {
			t.Fatalf("content-type %q: expected 415, got %d", ct, resp.StatusCode)
		}
	}
}

func TestIntegration_GeneratedRequestIDWhenMissing(t *testing.T) {
	u := waitReady(t)
	resp, _ := send(t, http.MethodGet, u+"/products", "", "")
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected generated X-Request-Id")
	}
}

func TestIntegration_MetricsReflectActivity(t *testing.T) {
	u := waitReady(t)
	p := seedProduct(t, u, "metrics", 1)
	resp, b := send(t, http.MethodPost, u+"/orders", "application/json",
		fmt.Sprintf(`{"email":"%s","productIds":["%s"],"payment":"CASH"}`, uniqueEmail(), p.ID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, b)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, b = send(t, http.MethodGet, u+"/debug/metrics", "", "")
		var m map[string]float64
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("metrics: %v %s", err, b)
		}
		if m["messages_enqueued"] >= 1 && m["last_sequence"] >= 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics never moved: %s", b)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestIntegration_PrometheusAndVars(t *testing.T) {
	u := waitReady(t)
	for _, path := range []string{"/metrics", "/debug/vars", "/debug/dead-letters"} {
		resp, _ := send(t, http.MethodGet, u+path, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

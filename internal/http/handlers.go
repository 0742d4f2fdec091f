package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/ecommerce-service/internal/api"
	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/config"
	httpopenapi "github.com/fairyhunter13/ecommerce-service/internal/http/openapi"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/queue"
)

const maxBodyBytes = 1 << 20

// HeaderUserEmail carries the e-mail of the acting user.
const HeaderUserEmail = "X-User-Email"

// RelayDeadLetters lists the records a Kafka relay gave up on.
type RelayDeadLetters interface {
	DeadLetters() []bus.DeadLetter
}

// App serves the REST resources over net/http.
type App struct {
	Cfg           config.Config
	Orders        api.Handler
	ProductsFetch api.Handler
	ProductsAdmin api.Handler
	Manager       *queue.Manager
	Relay         RelayDeadLetters // optional
	Metrics       *obs.Metrics
	closing       atomic.Bool
	started       time.Time
}

func NewApp(cfg config.Config, orders, fetch, admin api.Handler, m *queue.Manager, metrics *obs.Metrics) *App {
	return &App{
		Cfg:           cfg,
		Orders:        orders,
		ProductsFetch: fetch,
		ProductsAdmin: admin,
		Manager:       m,
		Metrics:       metrics,
		started:       time.Now(),
	}
}

// StartShutdown rejects further mutations. The e-mail queue keeps accepting
// until the caller closes its intake, after in-flight deliveries finished.
func (a *App) StartShutdown() { a.closing.Store(true) }

func isMutation(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete
}

// serve translates r into an api.Request for resource and writes h's answer.
func (a *App) serve(w http.ResponseWriter, r *http.Request, h api.Handler, resource string, params map[string]string) {
	if isMutation(r.Method) && a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
			return
		}
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		body = b
	}
	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	reqID := RequestIDFromContext(r.Context())
	resp, err := h.Handle(r.Context(), api.Request{
		Method:       r.Method,
		Resource:     resource,
		PathParams:   params,
		Query:        query,
		Body:         body,
		RequestID:    reqID,
		APIRequestID: reqID,
		Principal:    r.Header.Get(HeaderUserEmail),
	})
	if err != nil {
		obs.Logger.Error("request_failed", "request_id", reqID, "resource", resource, "error", err)
		WriteJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (a *App) ordersHandler(w http.ResponseWriter, r *http.Request) {
	a.serve(w, r, a.Orders, api.ResourceOrders, nil)
}

func (a *App) productsHandler(w http.ResponseWriter, r *http.Request) {
	h := a.ProductsAdmin
	if r.Method == http.MethodGet {
		h = a.ProductsFetch
	}
	a.serve(w, r, h, api.ResourceProducts, nil)
}

func (a *App) productHandler(w http.ResponseWriter, r *http.Request) {
	prefix := "/products/"
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	h := a.ProductsAdmin
	if r.Method == http.MethodGet {
		h = a.ProductsFetch
	}
	a.serve(w, r, h, api.ResourceProduct, map[string]string{"id": id})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"closing":    a.closing.Load(),
		"uptime_sec": time.Since(a.started).Seconds(),
	})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	m := map[string]any{"uptime_sec": time.Since(a.started).Seconds()}
	if a.Manager != nil {
		enq, proc, backlog, depth := a.Manager.QueueMetrics()
		m["messages_enqueued"] = enq
		m["messages_processed"] = proc
		m["messages_dead_lettered"] = a.Manager.DeadLetterCount()
		m["last_sequence"] = a.Manager.LastSequence()
		m["backlog_size"] = backlog
		m["queue_depth"] = depth
		m["worker_count"] = a.Manager.WorkerCount()
	}
	writeJSON(w, http.StatusOK, m)
}

// Dead-letter sources.
const (
	sourceEmailQueue = "email_queue"
	sourceKafka      = "kafka_relay"
)

type deadLetter struct {
	Source       string            `json:"source"`
	MessageID    string            `json:"message_id"`
	Sequence     uint64            `json:"sequence,omitempty"`
	Partition    *int              `json:"partition,omitempty"`
	Offset       *int64            `json:"offset,omitempty"`
	ReceiveCount int               `json:"receive_count"`
	Error        string            `json:"error,omitempty"`
	Attributes   map[string]string `json:"attributes"`
	Body         json.RawMessage   `json:"body"`
}

func rawBody(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

func (a *App) deadLettersHandler(w http.ResponseWriter, r *http.Request) {
	out := []deadLetter{}
	if a.Manager != nil {
		for _, m := range a.Manager.DeadLetters() {
			out = append(out, deadLetter{
				Source:       sourceEmailQueue,
				MessageID:    m.ID,
				Sequence:     m.Seq,
				ReceiveCount: m.ReceiveCount,
				Attributes:   m.Attributes,
				Body:         rawBody(m.Body),
			})
		}
	}
	if a.Relay != nil {
		for _, d := range a.Relay.DeadLetters() {
			out = append(out, deadLetter{
				Source:       sourceKafka,
				MessageID:    d.ID,
				Partition:    &d.Partition,
				Offset:       &d.Offset,
				ReceiveCount: d.Deliveries,
				Error:        d.Err,
				Attributes:   d.Attributes,
				Body:         rawBody(d.Body),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", httpopenapi.ContentType)
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>E-commerce API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}

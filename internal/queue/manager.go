// Package queue implements the in-process queue behind queue-backed
// subscriptions: an autoscaled worker pool, bounded receives and a
// dead-letter queue.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/config"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// ErrIntakeClosed is returned by Handle once the manager is draining.
var ErrIntakeClosed = errors.New("queue intake closed")

// Manager coordinates workers processing queued messages and scaling.
type Manager struct {
	cfg     config.Config
	q       *Queue
	handler bus.Handler
	metrics *obs.Metrics
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc

	dlqMu sync.Mutex
	dlq   []Message
}

// NewManager constructs a Manager that feeds queued messages to h.
func NewManager(cfg config.Config, q *Queue, h bus.Handler, metrics *obs.Metrics) *Manager {
	if cfg.QueueMaxReceiveCount <= 0 {
		cfg.QueueMaxReceiveCount = 1
	}
	return &Manager{cfg: cfg, q: q, handler: h, metrics: metrics}
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

// removeWorkers stops up to n workers.
func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

// worker drains messages from the queue and hands them to the handler.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.q.Out():
			m.process(msg)
		}
	}
}

// process runs the handler once. A failure puts the message back after the
// retry delay until it has been received QueueMaxReceiveCount times, then it
// moves to the dead-letter queue.
func (m *Manager) process(msg Message) {
	msg.ReceiveCount++
	// A scaled-down worker still finishes the message it holds.
	err := m.handler.Handle(context.WithoutCancel(m.ctx), msg.Message)
	if err == nil {
		m.q.MarkProcessed()
		return
	}
	if msg.ReceiveCount >= m.cfg.QueueMaxReceiveCount {
		m.deadLetter(msg, err)
		m.q.MarkProcessed()
		return
	}
	obs.Logger.Warn("message_retry_scheduled", "message_id", msg.ID, "seq", msg.Seq, "receive_count", msg.ReceiveCount, "error", err)
	time.AfterFunc(m.cfg.QueueRetryDelay, func() { m.q.Requeue(msg) })
}

func (m *Manager) deadLetter(msg Message, cause error) {
	m.dlqMu.Lock()
	m.dlq = append(m.dlq, msg)
	m.dlqMu.Unlock()
	m.metrics.MessageDeadLettered()
	obs.Logger.Error("message_dead_lettered", "message_id", msg.ID, "seq", msg.Seq, "receive_count", msg.ReceiveCount, "error", cause)
}

// Handle enqueues msg, which makes the manager usable as a subscription
// handler. It fails only when intake is closed.
func (m *Manager) Handle(_ context.Context, msg bus.Message) error {
	if !m.q.Enqueue(msg) {
		return ErrIntakeClosed
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (m *Manager) Enqueue(msg bus.Message) bool { return m.q.Enqueue(msg) }

// BacklogSize returns pending items in the queue.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// LastSequence returns the arrival number of the newest message.
func (m *Manager) LastSequence() uint64 { return m.q.seq.Last() }

// DeadLetters returns a copy of the dead-lettered messages, oldest first.
func (m *Manager) DeadLetters() []Message {
	m.dlqMu.Lock()
	defer m.dlqMu.Unlock()
	return append([]Message(nil), m.dlq...)
}

// DeadLetterCount returns the size of the dead-letter queue.
func (m *Manager) DeadLetterCount() int {
	m.dlqMu.Lock()
	defer m.dlqMu.Unlock()
	return len(m.dlq)
}

// IsShuttingDown reports whether new enqueues are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future enqueues.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return m.q.Metrics()
}

// DrainUntil blocks until every enqueued message was processed or
// dead-lettered, or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		enq, proc, backlog, depth := m.q.Metrics()
		if backlog == 0 && depth == 0 && enq == proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

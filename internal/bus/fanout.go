package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

// Delivery outcomes recorded per subscription.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeFiltered = "filtered"
)

// Fanout delivers messages to every matching subscription.
type Fanout struct {
	mu         sync.RWMutex
	subs       []Subscription
	metrics    *obs.Metrics
	retryDelay time.Duration

	inflight sync.WaitGroup
}

// NewFanout creates a Fanout. metrics may be nil.
func NewFanout(metrics *obs.Metrics, subs ...Subscription) *Fanout {
	return &Fanout{subs: subs, metrics: metrics, retryDelay: 50 * time.Millisecond}
}

// Subscribe adds a subscription.
func (f *Fanout) Subscribe(s Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
}

// SetRetryDelay changes the pause between attempts of a direct handler.
func (f *Fanout) SetRetryDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryDelay = d
}

// Deliver hands msg to every subscription whose filter accepts it. The
// subscriptions run concurrently and Deliver returns once all are done,
// with the first failure if any.
func (f *Fanout) Deliver(ctx context.Context, msg Message) error {
	f.mu.RLock()
	subs := append([]Subscription(nil), f.subs...)
	delay := f.retryDelay
	f.mu.RUnlock()

	var g errgroup.Group
	for _, s := range subs {
		if !s.Filter.Matches(msg.Attributes) {
			f.metrics.Delivery(s.Name, OutcomeFiltered)
			continue
		}
		g.Go(func() error { return f.deliverOne(ctx, s, msg, delay) })
	}
	return g.Wait()
}

func (f *Fanout) deliverOne(ctx context.Context, s Subscription, msg Message, delay time.Duration) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = s.Handler.Handle(ctx, msg); err == nil {
			f.metrics.Delivery(s.Name, OutcomeOK)
			return nil
		}
		obs.Logger.Warn("delivery_failed", "subscription", s.Name, "message_id", msg.ID, "attempt", i, "error", err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			f.metrics.Delivery(s.Name, OutcomeFailed)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	f.metrics.Delivery(s.Name, OutcomeFailed)
	return fmt.Errorf("subscription %s: %w", s.Name, err)
}

// Dispatch delivers msg in the background, detached from ctx cancellation.
func (f *Fanout) Dispatch(ctx context.Context, msg Message) {
	dctx := context.WithoutCancel(ctx)
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		if err := f.Deliver(dctx, msg); err != nil {
			obs.Logger.Error("fanout_failed", "message_id", msg.ID, "error", err)
		}
	}()
}

// Wait blocks until every dispatched delivery has finished.
func (f *Fanout) Wait() { f.inflight.Wait() }

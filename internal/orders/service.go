package orders

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// OrderStore is the Orders table as used by Service.
type OrderStore interface {
	Create(ctx context.Context, o model.Order) (model.Order, error)
	Get(ctx context.Context, key store.Key) (model.Order, error)
	Query(ctx context.Context, pk string) ([]model.Order, error)
	ScanAll(ctx context.Context) ([]model.Order, error)
	Delete(ctx context.Context, key store.Key) (model.Order, error)
}

// Service runs the order lifecycle.
type Service struct {
	assembler *Assembler
	orders    OrderStore
	events    bus.Publisher
	metrics   *obs.Metrics
}

func NewService(a *Assembler, orders OrderStore, events bus.Publisher, metrics *obs.Metrics) *Service {
	return &Service{assembler: a, orders: orders, events: events, metrics: metrics}
}

// Create assembles and persists an order and publishes ORDER_CREATED. The
// write and the publish run concurrently; Create returns after both.
// Nothing is written or published when assembly fails.
func (s *Service) Create(ctx context.Context, req Request, requestID string) (model.Order, error) {
	o, err := s.assembler.Assemble(ctx, req)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			s.metrics.OrderRejected()
		}
		return model.Order{}, err
	}
	env, err := envelope.Wrap(envelope.OrderCreated, envelope.NewOrderEvent(o, requestID))
	if err != nil {
		return model.Order{}, err
	}

	var g errgroup.Group
	var messageID string
	g.Go(func() error {
		_, err := s.orders.Create(ctx, o)
		return err
	})
	g.Go(func() error {
		id, err := s.events.Publish(ctx, env)
		messageID = id
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Order{}, fmt.Errorf("create order %s: %w", o.SK, err)
	}
	s.metrics.OrderCreated()
	obs.Logger.Info("order_created", "order_id", o.SK, "message_id", messageID, "request_id", requestID)
	return o, nil
}

// Delete removes an order and then publishes ORDER_DELETED built from the
// removed record.
func (s *Service) Delete(ctx context.Context, email, orderID, requestID string) (model.Order, error) {
	o, err := s.orders.Delete(ctx, store.Key{PK: email, SK: orderID})
	if err != nil {
		return model.Order{}, err
	}
	env, err := envelope.Wrap(envelope.OrderDeleted, envelope.NewOrderEvent(o, requestID))
	if err != nil {
		return model.Order{}, err
	}
	messageID, err := s.events.Publish(ctx, env)
	if err != nil {
		return model.Order{}, fmt.Errorf("publish delete of %s: %w", orderID, err)
	}
	s.metrics.OrderDeleted()
	obs.Logger.Info("order_deleted", "order_id", o.SK, "message_id", messageID, "request_id", requestID)
	return o, nil
}

// Get fetches one order of a customer.
func (s *Service) Get(ctx context.Context, email, orderID string) (model.Order, error) {
	return s.orders.Get(ctx, store.Key{PK: email, SK: orderID})
}

// ListByEmail returns every order of a customer.
func (s *Service) ListByEmail(ctx context.Context, email string) ([]model.Order, error) {
	return s.orders.Query(ctx, email)
}

// ListAll returns every order in the table.
func (s *Service) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.orders.ScanAll(ctx)
}

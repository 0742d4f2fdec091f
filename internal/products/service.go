// Package products manages the product catalogue and reports catalogue
// changes to the product event recorder.
package products

import (
	"context"

	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// ProductStore is the Products table as used by Service.
type ProductStore interface {
	Create(ctx context.Context, p model.Product) (model.Product, error)
	Get(ctx context.Context, key store.Key) (model.Product, error)
	ScanAll(ctx context.Context) ([]model.Product, error)
	Update(ctx context.Context, p model.Product) (model.Product, error)
	Delete(ctx context.Context, key store.Key) (model.Product, error)
}

// Actor identifies who triggered a change.
type Actor struct {
	Email     string
	RequestID string
}

// Service is the catalogue. Mutations notify the Recorder after the write
// succeeded; recording has no delivery guarantee.
type Service struct {
	products ProductStore
	recorder Recorder
}

func NewService(products ProductStore, recorder Recorder) *Service {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Service{products: products, recorder: recorder}
}

func (s *Service) List(ctx context.Context) ([]model.Product, error) {
	return s.products.ScanAll(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (model.Product, error) {
	return s.products.Get(ctx, store.Key{PK: id})
}

// Create stores p under a fresh id.
func (s *Service) Create(ctx context.Context, p model.Product, by Actor) (model.Product, error) {
	p.ID = ""
	created, err := s.products.Create(ctx, p)
	if err != nil {
		return model.Product{}, err
	}
	s.record(ctx, envelope.ProductCreated, created, by)
	return created, nil
}

// Update replaces the product with id, which must exist.
func (s *Service) Update(ctx context.Context, id string, p model.Product, by Actor) (model.Product, error) {
	p.ID = id
	updated, err := s.products.Update(ctx, p)
	if err != nil {
		return model.Product{}, err
	}
	s.record(ctx, envelope.ProductUpdated, updated, by)
	return updated, nil
}

// Delete removes the product with id and returns it.
func (s *Service) Delete(ctx context.Context, id string, by Actor) (model.Product, error) {
	deleted, err := s.products.Delete(ctx, store.Key{PK: id})
	if err != nil {
		return model.Product{}, err
	}
	s.record(ctx, envelope.ProductDeleted, deleted, by)
	return deleted, nil
}

func (s *Service) record(ctx context.Context, t envelope.Type, p model.Product, by Actor) {
	obs.Logger.Info("product_changed", "event_type", t, "product_id", p.ID, "request_id", by.RequestID)
	s.recorder.Record(ctx, envelope.NewProductEvent(t, p, by.Email, by.RequestID))
}

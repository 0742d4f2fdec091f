// Package orders assembles orders from catalogue products and runs the
// order lifecycle: persist, publish, read and delete.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// ErrProductNotFound is returned when a requested product id does not resolve.
var ErrProductNotFound = errors.New("some product was not found")

// ProductLookup resolves products in one batched read.
type ProductLookup interface {
	GetMany(ctx context.Context, keys []store.Key) ([]model.Product, error)
}

// Request is a validated order request.
type Request struct {
	Email      string
	ProductIDs []string
	Payment    model.PaymentType
	Shipping   model.Shipping
}

// Assembler builds orders without persisting them.
type Assembler struct {
	products ProductLookup
	now      func() time.Time
	newID    func() string
}

// NewAssembler returns an Assembler using the wall clock and uuids.
func NewAssembler(products ProductLookup) *Assembler {
	return &Assembler{products: products, now: time.Now, newID: uuid.NewString}
}

// Assemble resolves every requested product and returns the order to store.
// A single unresolved id fails the whole request with ErrProductNotFound.
func (a *Assembler) Assemble(ctx context.Context, req Request) (model.Order, error) {
	keys := make([]store.Key, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		keys = append(keys, store.Key{PK: id})
	}
	found, err := a.products.GetMany(ctx, keys)
	if err != nil {
		return model.Order{}, fmt.Errorf("resolve products: %w", err)
	}
	byID := make(map[string]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	total := decimal.Zero
	snapshot := make([]model.OrderProduct, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		p, ok := byID[id]
		if !ok {
			return model.Order{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		total = total.Add(decimal.NewFromFloat(p.Price))
		snapshot = append(snapshot, model.OrderProduct{Code: p.Code, Price: p.Price})
	}

	return model.Order{
		PK:        req.Email,
		SK:        a.newID(),
		CreatedAt: a.now().UnixMilli(),
		Shipping:  req.Shipping,
		Billing: model.Billing{
			Payment:    req.Payment,
			TotalPrice: total.InexactFloat64(),
		},
		Products: snapshot,
	}, nil
}

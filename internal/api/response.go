package api

import "github.com/fairyhunter13/ecommerce-service/internal/model"

// OrderResponse is the public view of an order.
type OrderResponse struct {
	Email     string               `json:"email"`
	ID        string               `json:"id"`
	CreatedAt int64                `json:"createdAt"`
	Products  []model.OrderProduct `json:"products,omitempty"`
	Billing   model.Billing        `json:"billing"`
	Shipping  model.Shipping       `json:"shipping"`
}

// ToOrderResponse shapes a stored order. An empty product list is left out.
func ToOrderResponse(o model.Order) OrderResponse {
	r := OrderResponse{
		Email:     o.PK,
		ID:        o.SK,
		CreatedAt: o.CreatedAt,
		Billing:   o.Billing,
		Shipping:  o.Shipping,
	}
	if len(o.Products) > 0 {
		r.Products = append([]model.OrderProduct(nil), o.Products...)
	}
	return r
}

// ToOrderListResponse shapes orders for list views, which omit the product
// snapshots.
func ToOrderListResponse(orders []model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		o.Products = nil
		out = append(out, ToOrderResponse(o))
	}
	return out
}

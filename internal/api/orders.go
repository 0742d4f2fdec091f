package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/orders"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// OrderService is the order lifecycle used by OrderHandler.
type OrderService interface {
	Create(ctx context.Context, req orders.Request, requestID string) (model.Order, error)
	Delete(ctx context.Context, email, orderID, requestID string) (model.Order, error)
	Get(ctx context.Context, email, orderID string) (model.Order, error)
	ListByEmail(ctx context.Context, email string) ([]model.Order, error)
	ListAll(ctx context.Context) ([]model.Order, error)
}

// OrderHandler serves /orders.
type OrderHandler struct {
	svc OrderService
}

func NewOrderHandler(svc OrderService) *OrderHandler { return &OrderHandler{svc: svc} }

// orderRequestBody is the POST /orders payload.
type orderRequestBody struct {
	Email      string            `json:"email"`
	ProductIDs []string          `json:"productIds"`
	Payment    model.PaymentType `json:"payment"`
	Shipping   *model.Shipping   `json:"shipping,omitempty"`
}

// ParseOrderRequest validates a POST /orders body. A missing shipping
// descriptor defaults to economic delivery by Correios.
func ParseOrderRequest(body []byte) (orders.Request, error) {
	var in orderRequestBody
	if err := decodeStrict(body, &in); err != nil {
		return orders.Request{}, err
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return orders.Request{}, invalid("email", "is required")
	}
	if !strings.Contains(email, "@") {
		return orders.Request{}, invalid("email", "must be an e-mail address")
	}
	if len(in.ProductIDs) == 0 {
		return orders.Request{}, invalid("productIds", "must not be empty")
	}
	for _, id := range in.ProductIDs {
		if strings.TrimSpace(id) == "" {
			return orders.Request{}, invalid("productIds", "must not contain empty ids")
		}
	}
	if !in.Payment.Valid() {
		return orders.Request{}, invalid("payment", "must be one of CASH, CREDIT_CARD, DEBIT_CARD")
	}
	shipping := model.Shipping{Type: model.ShippingEconomic, Carrier: model.CarrierCorreios}
	if in.Shipping != nil {
		if !in.Shipping.Type.Valid() {
			return orders.Request{}, invalid("shipping.type", "must be one of ECONOMIC, URGENT")
		}
		if !in.Shipping.Carrier.Valid() {
			return orders.Request{}, invalid("shipping.carrier", "must be one of CORREIOS, FEDEX")
		}
		shipping = *in.Shipping
	}
	return orders.Request{Email: email, ProductIDs: in.ProductIDs, Payment: in.Payment, Shipping: shipping}, nil
}

func (h *OrderHandler) Handle(ctx context.Context, req Request) (Response, error) {
	obs.Logger.Info("orders_request", "method", req.Method, "api_request_id", req.APIRequestID, "request_id", req.RequestID)
	switch req.Method {
	case http.MethodGet:
		return h.get(ctx, req)
	case http.MethodPost:
		return h.create(ctx, req)
	case http.MethodDelete:
		return h.delete(ctx, req)
	}
	return badRequest(), nil
}

func (h *OrderHandler) get(ctx context.Context, req Request) (Response, error) {
	email, orderID := req.Query["email"], req.Query["orderId"]
	switch {
	case email == "" && orderID == "":
		all, err := h.svc.ListAll(ctx)
		if err != nil {
			return Response{}, err
		}
		return jsonResponse(http.StatusOK, ToOrderListResponse(all))
	case email == "":
		return text(http.StatusBadRequest, "email is required when orderId is given"), nil
	case orderID == "":
		mine, err := h.svc.ListByEmail(ctx, email)
		if err != nil {
			return Response{}, err
		}
		return jsonResponse(http.StatusOK, ToOrderListResponse(mine))
	}
	o, err := h.svc.Get(ctx, email, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return text(http.StatusNotFound, "Order not found"), nil
	}
	if err != nil {
		return Response{}, err
	}
	return jsonResponse(http.StatusOK, ToOrderResponse(o))
}

func (h *OrderHandler) create(ctx context.Context, req Request) (Response, error) {
	in, err := ParseOrderRequest(req.Body)
	if err != nil {
		return text(http.StatusBadRequest, err.Error()), nil
	}
	o, err := h.svc.Create(ctx, in, req.RequestID)
	if errors.Is(err, orders.ErrProductNotFound) {
		return text(http.StatusNotFound, "Some product was not found"), nil
	}
	if err != nil {
		return Response{}, err
	}
	return jsonResponse(http.StatusCreated, ToOrderResponse(o))
}

func (h *OrderHandler) delete(ctx context.Context, req Request) (Response, error) {
	email, orderID := req.Query["email"], req.Query["orderId"]
	if email == "" || orderID == "" {
		return text(http.StatusBadRequest, "email and orderId are required"), nil
	}
	o, err := h.svc.Delete(ctx, email, orderID, req.RequestID)
	if errors.Is(err, store.ErrNotFound) {
		return text(http.StatusNotFound, "Order not found"), nil
	}
	if err != nil {
		return Response{}, err
	}
	return jsonResponse(http.StatusOK, ToOrderResponse(o))
}

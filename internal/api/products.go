package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/products"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// ProductService is the catalogue used by the product handlers.
type ProductService interface {
	List(ctx context.Context) ([]model.Product, error)
	Get(ctx context.Context, id string) (model.Product, error)
	Create(ctx context.Context, p model.Product, by products.Actor) (model.Product, error)
	Update(ctx context.Context, id string, p model.Product, by products.Actor) (model.Product, error)
	Delete(ctx context.Context, id string, by products.Actor) (model.Product, error)
}

type productRequestBody struct {
	ProductName string   `json:"productName"`
	Code        string   `json:"code"`
	Price       *float64 `json:"price,omitempty"`
	Model       string   `json:"model,omitempty"`
	ProductURL  string   `json:"productUrl,omitempty"`
}

// ParseProduct validates a product body. Price defaults to 0.
func ParseProduct(body []byte) (model.Product, error) {
	var in productRequestBody
	if err := decodeStrict(body, &in); err != nil {
		return model.Product{}, err
	}
	if strings.TrimSpace(in.ProductName) == "" {
		return model.Product{}, invalid("productName", "is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return model.Product{}, invalid("code", "is required")
	}
	p := model.Product{ProductName: in.ProductName, Code: in.Code, Model: in.Model, ProductURL: in.ProductURL}
	if in.Price != nil {
		if *in.Price < 0 {
			return model.Product{}, invalid("price", "must be >= 0")
		}
		p.Price = *in.Price
	}
	return p, nil
}

// ProductFetchHandler serves GET /products and GET /products/{id}.
type ProductFetchHandler struct {
	svc ProductService
}

func NewProductFetchHandler(svc ProductService) *ProductFetchHandler {
	return &ProductFetchHandler{svc: svc}
}

func (h *ProductFetchHandler) Handle(ctx context.Context, req Request) (Response, error) {
	obs.Logger.Info("products_fetch_request", "method", req.Method, "resource", req.Resource,
		"api_request_id", req.APIRequestID, "request_id", req.RequestID)
	if req.Method != http.MethodGet {
		return badRequest(), nil
	}
	switch req.Resource {
	case ResourceProducts:
		all, err := h.svc.List(ctx)
		if err != nil {
			return Response{}, err
		}
		if all == nil {
			all = []model.Product{}
		}
		return jsonResponse(http.StatusOK, all)
	case ResourceProduct:
		p, err := h.svc.Get(ctx, req.PathParams["id"])
		if errors.Is(err, store.ErrNotFound) {
			return text(http.StatusNotFound, "Product not found"), nil
		}
		if err != nil {
			return Response{}, err
		}
		return jsonResponse(http.StatusOK, p)
	}
	return badRequest(), nil
}

// ProductAdminHandler serves POST /products, PUT and DELETE /products/{id}.
type ProductAdminHandler struct {
	svc ProductService
}

func NewProductAdminHandler(svc ProductService) *ProductAdminHandler {
	return &ProductAdminHandler{svc: svc}
}

func (h *ProductAdminHandler) Handle(ctx context.Context, req Request) (Response, error) {
	obs.Logger.Info("products_admin_request", "method", req.Method, "resource", req.Resource,
		"api_request_id", req.APIRequestID, "request_id", req.RequestID)
	by := products.Actor{Email: req.Principal, RequestID: req.RequestID}

	if req.Resource == ResourceProducts && req.Method == http.MethodPost {
		p, err := ParseProduct(req.Body)
		if err != nil {
			return text(http.StatusBadRequest, err.Error()), nil
		}
		created, err := h.svc.Create(ctx, p, by)
		if err != nil {
			return Response{}, err
		}
		return jsonResponse(http.StatusCreated, created)
	}
	if req.Resource != ResourceProduct {
		return badRequest(), nil
	}

	id := req.PathParams["id"]
	if id == "" {
		return badRequest(), nil
	}
	var (
		p   model.Product
		err error
	)
	switch req.Method {
	case http.MethodPut:
		in, perr := ParseProduct(req.Body)
		if perr != nil {
			return text(http.StatusBadRequest, perr.Error()), nil
		}
		p, err = h.svc.Update(ctx, id, in, by)
	case http.MethodDelete:
		p, err = h.svc.Delete(ctx, id, by)
	default:
		return badRequest(), nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return text(http.StatusNotFound, "Product not found"), nil
	}
	if err != nil {
		return Response{}, err
	}
	return jsonResponse(http.StatusOK, p)
}

// Package envelope builds the transport envelopes published for order and
// product state changes.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairyhunter13/ecommerce-service/internal/model"
)

// Type tags the kind of state transition an envelope carries.
type Type string

const (
	OrderCreated   Type = "ORDER_CREATED"
	OrderDeleted   Type = "ORDER_DELETED"
	ProductCreated Type = "PRODUCT_CREATED"
	ProductUpdated Type = "PRODUCT_UPDATED"
	ProductDeleted Type = "PRODUCT_DELETED"
)

// AttrEventType is the message attribute subscribers filter on.
const AttrEventType = "eventType"

// ErrMalformed is returned when a message body is not a valid envelope.
var ErrMalformed = errors.New("malformed envelope")

// Envelope pairs an event type with its JSON-encoded payload. Data is a JSON
// string, not a nested object, so subscribers decode it in a second step.
type Envelope struct {
	EventType Type   `json:"eventType"`
	Data      string `json:"data"`
}

// OrderEvent is the payload of ORDER_* envelopes.
type OrderEvent struct {
	Email        string         `json:"email"`
	OrderID      string         `json:"orderId"`
	Billing      model.Billing  `json:"billing"`
	Shipping     model.Shipping `json:"shipping"`
	ProductCodes []string       `json:"productCodes"`
	RequestID    string         `json:"requestId"`
}

// ProductEvent is the payload sent to the product event recorder.
type ProductEvent struct {
	RequestID    string  `json:"requestId"`
	EventType    Type    `json:"eventType"`
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	ProductPrice float64 `json:"productPrice"`
	Email        string  `json:"email"`
}

// NewOrderEvent describes o for the invocation identified by requestID.
func NewOrderEvent(o model.Order, requestID string) OrderEvent {
	return OrderEvent{
		Email:        o.PK,
		OrderID:      o.SK,
		Billing:      o.Billing,
		Shipping:     o.Shipping,
		ProductCodes: o.ProductCodes(),
		RequestID:    requestID,
	}
}

// NewProductEvent describes a change of p made by the user with email.
func NewProductEvent(t Type, p model.Product, email, requestID string) ProductEvent {
	return ProductEvent{
		RequestID:    requestID,
		EventType:    t,
		ProductID:    p.ID,
		ProductCode:  p.Code,
		ProductPrice: p.Price,
		Email:        email,
	}
}

// Wrap serialises payload into an envelope of type t.
func Wrap(t Type, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{EventType: t, Data: string(data)}, nil
}

// Encode returns the message body of env.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses a message body into an envelope.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: missing eventType", ErrMalformed)
	}
	return env, nil
}

// OrderEvent decodes the payload of an ORDER_* envelope.
func (e Envelope) OrderEvent() (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal([]byte(e.Data), &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("%w: order payload: %v", ErrMalformed, err)
	}
	return ev, nil
}

// Attributes returns the message attributes published alongside e.
func (e Envelope) Attributes() map[string]string {
	return map[string]string{AttrEventType: string(e.EventType)}
}

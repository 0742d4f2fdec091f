package model

import (
	"fmt"
	"time"
)

// EventTTL is how long an archived event stays in the Events table.
const EventTTL = 5 * time.Minute

const (
	OrderEventPrefix   = "#order_"
	ProductEventPrefix = "#product_"
)

// EventInfo carries the entity-specific part of an archived event. Order
// events fill OrderID, ProductCodes and MessageID; product events fill
// ProductID and Price.
type EventInfo struct {
	OrderID      string   `json:"orderId,omitempty" dynamodbav:"orderId,omitempty"`
	ProductCodes []string `json:"productCodes,omitempty" dynamodbav:"productCodes,omitempty"`
	MessageID    string   `json:"messageId,omitempty" dynamodbav:"messageId,omitempty"`
	ProductID    string   `json:"productId,omitempty" dynamodbav:"productId,omitempty"`
	Price        float64  `json:"price,omitempty" dynamodbav:"price,omitempty"`
}

// EventRecord is an archived domain event. TTL is in epoch seconds; the store
// may drop the row once it has passed.
type EventRecord struct {
	PK        string    `json:"pk" dynamodbav:"pk"`
	SK        string    `json:"sk" dynamodbav:"sk"`
	TTL       int64     `json:"ttl" dynamodbav:"ttl"`
	Email     string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	CreatedAt int64     `json:"createdAt" dynamodbav:"createdAt"`
	RequestID string    `json:"requestId" dynamodbav:"requestId"`
	EventType string    `json:"eventType" dynamodbav:"eventType"`
	Info      EventInfo `json:"info" dynamodbav:"info"`
}

func (e EventRecord) PartitionKey() string { return e.PK }
func (e EventRecord) SortKey() string      { return e.SK }

// AssignID is a no-op: event keys are derived from their content.
func (e EventRecord) AssignID(func() string) EventRecord { return e }

// ExpiresAt reports when the record becomes eligible for removal.
func (e EventRecord) ExpiresAt() time.Time { return time.Unix(e.TTL, 0) }

// OrderEventKey builds the Events table key of an order event.
func OrderEventKey(orderID, eventType string, at time.Time) (pk, sk string) {
	return OrderEventPrefix + orderID, fmt.Sprintf("%s#%d", eventType, at.UnixMilli())
}

// ProductEventKey builds the Events table key of a product event.
func ProductEventKey(productCode, eventType string, at time.Time) (pk, sk string) {
	return ProductEventPrefix + productCode, fmt.Sprintf("%s#%d", eventType, at.UnixMilli())
}

// ExpiryFrom returns the TTL attribute for a record written at t.
func ExpiryFrom(t time.Time) int64 { return t.Add(EventTTL).Unix() }

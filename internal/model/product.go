// Package model defines the records persisted by the service.
package model

// Product is a catalogue entry of the Products table, keyed by ID.
//
// The attribute names avoid the DynamoDB reserved words "name" and "url".
type Product struct {
	ID          string  `json:"id" dynamodbav:"id"`
	ProductName string  `json:"productName" dynamodbav:"productName"`
	Code        string  `json:"code" dynamodbav:"code"`
	Price       float64 `json:"price" dynamodbav:"price"`
	Model       string  `json:"model,omitempty" dynamodbav:"model,omitempty"`
	ProductURL  string  `json:"productUrl,omitempty" dynamodbav:"productUrl,omitempty"`
}

func (p Product) PartitionKey() string { return p.ID }
func (p Product) SortKey() string      { return "" }

// AssignID returns p with a generated ID when it has none.
func (p Product) AssignID(newID func() string) Product {
	if p.ID == "" {
		p.ID = newID()
	}
	return p
}

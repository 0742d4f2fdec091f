package model

// PaymentType is the billing payment method.
type PaymentType string

const (
	PaymentCash       PaymentType = "CASH"
	PaymentCreditCard PaymentType = "CREDIT_CARD"
	PaymentDebitCard  PaymentType = "DEBIT_CARD"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard:
		return true
	}
	return false
}

// ShippingType is the delivery speed.
type ShippingType string

const (
	ShippingEconomic ShippingType = "ECONOMIC"
	ShippingUrgent   ShippingType = "URGENT"
)

func (s ShippingType) Valid() bool { return s == ShippingEconomic || s == ShippingUrgent }

// CarrierType is the delivery company.
type CarrierType string

const (
	CarrierCorreios CarrierType = "CORREIOS"
	CarrierFedex    CarrierType = "FEDEX"
)

func (c CarrierType) Valid() bool { return c == CarrierCorreios || c == CarrierFedex }

type Shipping struct {
	Type    ShippingType `json:"type" dynamodbav:"type"`
	Carrier CarrierType  `json:"carrier" dynamodbav:"carrier"`
}

type Billing struct {
	Payment    PaymentType `json:"payment" dynamodbav:"payment"`
	TotalPrice float64     `json:"totalPrice" dynamodbav:"totalPrice"`
}

// OrderProduct is the code and price of a product copied into an order when
// it was placed. Later product changes never reach it.
type OrderProduct struct {
	Code  string  `json:"code" dynamodbav:"code"`
	Price float64 `json:"price" dynamodbav:"price"`
}

// Order is a row of the Orders table: PK is the customer e-mail, SK the
// generated order id. Billing.TotalPrice is the sum of Products prices.
type Order struct {
	PK        string         `json:"pk" dynamodbav:"pk"`
	SK        string         `json:"sk" dynamodbav:"sk"`
	CreatedAt int64          `json:"createdAt" dynamodbav:"createdAt"`
	Shipping  Shipping       `json:"shipping" dynamodbav:"shipping"`
	Billing   Billing        `json:"billing" dynamodbav:"billing"`
	Products  []OrderProduct `json:"products,omitempty" dynamodbav:"products,omitempty"`
}

func (o Order) PartitionKey() string { return o.PK }
func (o Order) SortKey() string      { return o.SK }

// AssignID returns o with a generated order id when it has none.
func (o Order) AssignID(newID func() string) Order {
	if o.SK == "" {
		o.SK = newID()
	}
	return o
}

// ProductCodes lists the codes of the embedded products in order.
func (o Order) ProductCodes() []string {
	codes := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		codes = append(codes, p.Code)
	}
	return codes
}

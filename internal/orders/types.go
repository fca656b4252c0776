package orders

import "time"

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions is the whole state graph; anything absent is disallowed.
var transitions = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipping,
	StatusShipping:   StatusDelivered,
}

// CanTransition reports whether from -> to is an edge of the order state graph.
// pending -> cancelled is the only way into cancelled.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from == StatusPending
	}
	next, ok := transitions[from]
	return ok && next == to
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus returns the Status named by s, or false.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipping, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentBankQR PaymentMethod = "bank_qr"
)

// LineItem is a product snapshot taken when the order is placed. It is never edited.
type LineItem struct {
	ProductID string `dynamodbav:"product_id" json:"product_id"`
	Name      string `dynamodbav:"name" json:"name"`
	ImageURL  string `dynamodbav:"image_url,omitempty" json:"image_url,omitempty"`
	Price     int64  `dynamodbav:"price" json:"price"`
	Quantity  int64  `dynamodbav:"quantity" json:"quantity"`
}

// ShippingAddress is where the order is delivered. Email is used for notifications.
type ShippingAddress struct {
	FullName string `dynamodbav:"full_name" json:"full_name"`
	Phone    string `dynamodbav:"phone" json:"phone"`
	Email    string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Line1    string `dynamodbav:"line1" json:"line1"`
	City     string `dynamodbav:"city" json:"city"`
}

// Order represents the item stored in the Orders DynamoDB table. Money is in VND.
type Order struct {
	OrderID         string          `dynamodbav:"order_id" json:"order_id"` // PK
	UserID          string          `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	Items           []LineItem      `dynamodbav:"items" json:"items"`
	ShippingAddress ShippingAddress `dynamodbav:"shipping_address" json:"shipping_address"`
	PaymentMethod   PaymentMethod   `dynamodbav:"payment_method" json:"payment_method"`
	Subtotal        int64           `dynamodbav:"subtotal" json:"subtotal"`
	DiscountCode    string          `dynamodbav:"discount_code,omitempty" json:"discount_code,omitempty"`
	DiscountAmount  int64           `dynamodbav:"discount_amount" json:"discount_amount"`
	ShippingFee     int64           `dynamodbav:"shipping_fee" json:"shipping_fee"`
	FreeShipping    bool            `dynamodbav:"free_shipping" json:"free_shipping"`
	TotalPrice      int64           `dynamodbav:"total_price" json:"total_price"`
	Status          Status          `dynamodbav:"status" json:"status"`
	RejectionReason string          `dynamodbav:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `dynamodbav:"updated_at" json:"updated_at"`
	ConfirmedAt     *time.Time      `dynamodbav:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time      `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	ShippedAt       *time.Time      `dynamodbav:"shipped_at,omitempty" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
}

// Quantities returns the total quantity per product across the order's line items.
func (o *Order) Quantities() map[string]int64 {
	q := make(map[string]int64, len(o.Items))
	for _, li := range o.Items {
		q[li.ProductID] += li.Quantity
	}
	return q
}

package validation

import "time"

// OrderItem is one requested product line.
type OrderItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,min=1,max=100"`
}

// ShippingAddress is the delivery address on a checkout request.
type ShippingAddress struct {
	FullName string `json:"full_name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,numeric,min=9,max=11"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Line1    string `json:"line1" validate:"required,max=200"`
	City     string `json:"city" validate:"required,max=80"`
}

// CreateOrderRequest is the payload for POST /orders. Prices are never taken from the
// client; they are snapshotted from the catalog.
type CreateOrderRequest struct {
	Items           []OrderItem     `json:"items" validate:"required,min=1,max=96,dive"`
	ShippingAddress ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=cod bank_qr"`
	DiscountCode    string          `json:"discount_code,omitempty" validate:"omitempty,max=32"`
}

// ApplyDiscountRequest is the payload for POST /discounts/apply.
type ApplyDiscountRequest struct {
	Code       string `json:"code" validate:"required,max=32"`
	OrderValue int64  `json:"order_value" validate:"required,gt=0"`
}

// RejectOrderRequest is the payload for POST /admin/orders/:id/reject.
type RejectOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdvanceOrderRequest is the payload for POST /admin/orders/:id/advance.
type AdvanceOrderRequest struct {
	Status string `json:"status" validate:"required,oneof=shipping delivered"`
}

// UpsertDiscountRequest is the payload for PUT /admin/discounts. A zero start or end
// date leaves that side of the validity window open.
type UpsertDiscountRequest struct {
	Code           string    `json:"code" validate:"required,max=32"`
	Type           string    `json:"type" validate:"required,oneof=percentage fixed_amount free_shipping"`
	Value          float64   `json:"value" validate:"gte=0"`
	MaxDiscount    int64     `json:"max_discount" validate:"gte=0"`
	MinOrderValue  int64     `json:"min_order_value" validate:"gte=0"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	MaxUses        *int64    `json:"max_uses" validate:"omitempty,gte=0"` // null = unlimited
	MaxUsesPerUser int64     `json:"max_uses_per_user" validate:"min=1"`
	Status         string    `json:"status" validate:"required,oneof=active inactive expired"`
}

// ProductRequest is a catalog edit (create, reprice or restock).
type ProductRequest struct {
	ProductID     string `json:"product_id" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=200"`
	Price         int64  `json:"price" validate:"gte=0"`
	ImageURL      string `json:"image_url,omitempty" validate:"omitempty,url"`
	StockQuantity int64  `json:"stock_quantity" validate:"gte=0"`
}

package discount

import (
	"strings"
	"time"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
)

// Type is the stored discriminator of a promotion; see Rule for the typed form.
type Type string

const (
	TypePercentage   Type = "percentage"
	TypeFixedAmount  Type = "fixed_amount"
	TypeFreeShipping Type = "free_shipping"
)

// Status is the admin-controlled state of a code.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
)

// Code is the item stored in the discounts table.
type Code struct {
	Code           string    `dynamodbav:"code" json:"code"` // PK, normalized
	Type           Type      `dynamodbav:"type" json:"type"`
	Value          float64   `dynamodbav:"value" json:"value"`
	MaxDiscount    int64     `dynamodbav:"max_discount" json:"max_discount"`
	MinOrderValue  int64     `dynamodbav:"min_order_value" json:"min_order_value"`
	StartDate      time.Time `dynamodbav:"start_date" json:"start_date"`
	EndDate        time.Time `dynamodbav:"end_date" json:"end_date"`
	MaxUses        *int64    `dynamodbav:"max_uses,omitempty" json:"max_uses"` // nil = unlimited
	MaxUsesPerUser int64     `dynamodbav:"max_uses_per_user" json:"max_uses_per_user"`
	Status         Status    `dynamodbav:"status" json:"status"`
	UsedCount      int64     `dynamodbav:"used_count" json:"used_count"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Redemption records one confirmed use of a code. It is its own item in the usage
// table so the code item stays the same size however often it is used.
type Redemption struct {
	UsageKey   string    `dynamodbav:"usage_key" json:"-"` // PK, "<code>#ORDER#<order_id>"
	Code       string    `dynamodbav:"code" json:"code"`
	UserID     string    `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	OrderID    string    `dynamodbav:"order_id" json:"order_id"`
	OrderValue int64     `dynamodbav:"order_value" json:"order_value"`
	UsedAt     time.Time `dynamodbav:"used_at" json:"used_at"`
}

// UserUsage counts one user's redemptions of a code.
type UserUsage struct {
	UsageKey  string    `dynamodbav:"usage_key"` // PK, "<code>#USER#<user_id>"
	Code      string    `dynamodbav:"code"`
	UserID    string    `dynamodbav:"user_id"`
	Uses      int64     `dynamodbav:"uses"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func redemptionKey(code, orderID string) string { return code + "#ORDER#" + orderID }

func userUsageKey(code, userID string) string { return code + "#USER#" + userID }

// Result is the outcome of validating a code against an order value. Invalid codes are
// reported here, not as errors.
type Result struct {
	Valid          bool        `json:"valid"`
	Code           string      `json:"code"`
	Reason         apperr.Kind `json:"reason,omitempty"`
	DiscountAmount int64       `json:"discount_amount"`
	FreeShipping   bool        `json:"free_shipping"`
}

// Err returns the typed error matching an invalid result, or nil.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return apperr.New(r.Reason, "discount code %q", r.Code)
}

// NormalizeCode makes code matching case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

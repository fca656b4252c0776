package discount

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount is what a rule grants on an order. FreeShipping is kept apart from Value so the
// shipping fee waiver never leaks into the monetary discount.
type Amount struct {
	Value        int64
	FreeShipping bool
}

// Rule is the closed set of discount variants. The unexported method keeps other
// packages from adding variants.
type Rule interface {
	Apply(orderValue int64) Amount
	isRule()
}

// Percentage takes Percent of the order value, capped at Cap when Cap > 0.
type Percentage struct {
	Percent decimal.Decimal
	Cap     int64
}

// FixedAmount takes a flat amount, never more than the order value.
type FixedAmount struct {
	Value int64
}

// FreeShipping waives the shipping fee and has no monetary value.
type FreeShipping struct{}

func (Percentage) isRule()   {}
func (FixedAmount) isRule()  {}
func (FreeShipping) isRule() {}

func (p Percentage) Apply(orderValue int64) Amount {
	if orderValue <= 0 {
		return Amount{}
	}
	raw := decimal.NewFromInt(orderValue).Mul(p.Percent).Div(decimal.NewFromInt(100)).Floor().IntPart()
	if p.Cap > 0 && raw > p.Cap {
		raw = p.Cap
	}
	return Amount{Value: raw}
}

func (f FixedAmount) Apply(orderValue int64) Amount {
	if orderValue <= 0 {
		return Amount{}
	}
	if f.Value < orderValue {
		return Amount{Value: f.Value}
	}
	return Amount{Value: orderValue}
}

func (FreeShipping) Apply(int64) Amount {
	return Amount{FreeShipping: true}
}

// Rule converts the stored type/value pair into its variant.
func (c *Code) Rule() (Rule, error) {
	if c.Value < 0 || math.IsNaN(c.Value) {
		return nil, fmt.Errorf("discount %s: negative value", c.Code)
	}
	switch c.Type {
	case TypePercentage:
		if c.Value > 100 {
			return nil, fmt.Errorf("discount %s: percentage above 100", c.Code)
		}
		return Percentage{Percent: decimal.NewFromFloat(c.Value), Cap: c.MaxDiscount}, nil
	case TypeFixedAmount:
		return FixedAmount{Value: int64(math.Round(c.Value))}, nil
	case TypeFreeShipping:
		return FreeShipping{}, nil
	}
	return nil, fmt.Errorf("discount %s: unknown type %q", c.Code, c.Type)
}

// ComputeDiscountAmount applies the code's rule to orderValue.
func (c *Code) ComputeDiscountAmount(orderValue int64) (Amount, error) {
	r, err := c.Rule()
	if err != nil {
		return Amount{}, err
	}
	return r.Apply(orderValue), nil
}

// Package checkout turns a cart into a pending order: it snapshots catalog prices,
// prices the discount and shipping, and creates the order under an idempotency key.
package checkout

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/catalog"
	"github.com/imrishuroy/go-phone-storefront/internal/discount"
	"github.com/imrishuroy/go-phone-storefront/internal/idempotency"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

// Item is a requested product and quantity.
type Item struct {
	ProductID string
	Quantity  int64
}

// PlaceOrderInput is everything a customer submits at checkout. UserID is empty for
// guests; IdempotencyKey may be empty for callers that do not retry.
type PlaceOrderInput struct {
	UserID          string
	IdempotencyKey  string
	Items           []Item
	ShippingAddress orders.ShippingAddress
	PaymentMethod   orders.PaymentMethod
	DiscountCode    string
}

// Service prices and places orders.
type Service struct {
	catalog     *catalog.Store
	ledger      *discount.Ledger
	machine     *orders.Machine
	idem        *idempotency.Store
	shippingFee int64
	logger      *zap.Logger
}

// NewService wires a checkout Service. shippingFee is the flat fee in VND.
func NewService(catalog *catalog.Store, ledger *discount.Ledger, machine *orders.Machine, idem *idempotency.Store, shippingFee int64, logger *zap.Logger) *Service {
	return &Service{
		catalog:     catalog,
		ledger:      ledger,
		machine:     machine,
		idem:        idem,
		shippingFee: shippingFee,
		logger:      logger,
	}
}

// ApplyDiscount previews a code against an order value. Invalid codes come back as a
// Result with Valid=false.
func (s *Service) ApplyDiscount(ctx context.Context, code, userID string, orderValue int64) (discount.Result, error) {
	return s.ledger.Validate(ctx, code, userID, orderValue)
}

// mergeItems sums quantities of repeated products, keeping first-seen order.
func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "cart is empty")
	}
	idx := map[string]int{}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" || it.Quantity <= 0 {
			return nil, apperr.New(apperr.InvalidInput, "invalid item %q x%d", it.ProductID, it.Quantity)
		}
		if i, ok := idx[id]; ok {
			q, ok := addAmounts(out[i].Quantity, it.Quantity)
			if !ok {
				return nil, apperr.New(apperr.InvalidInput, "quantity of %q is too large", id)
			}
			out[i].Quantity = q
			continue
		}
		idx[id] = len(out)
		out = append(out, Item{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}

// mulAmount and addAmounts work on non-negative VND amounts and quantities; ok is
// false when the result would not fit in an int64.
func mulAmount(price, qty int64) (int64, bool) {
	if price != 0 && qty > math.MaxInt64/price {
		return 0, false
	}
	return price * qty, true
}

func addAmounts(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// PlaceOrder creates a pending order. A reused idempotency key returns
// orders.ErrDuplicateKey and writes nothing.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*orders.Order, error) {
	items, err := mergeItems(in.Items)
	if err != nil {
		return nil, err
	}

	o := &orders.Order{
		OrderID:         uuid.NewString(),
		UserID:          in.UserID,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
	}
	for _, it := range items {
		p, err := s.catalog.Get(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.New(apperr.ProductNotFound, "product %s", it.ProductID)
		}
		o.Items = append(o.Items, orders.LineItem{
			ProductID: p.ProductID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
		line, ok := mulAmount(p.Price, it.Quantity)
		if ok {
			o.Subtotal, ok = addAmounts(o.Subtotal, line)
		}
		if !ok {
			return nil, apperr.New(apperr.InvalidInput, "order total is too large")
		}
	}

	o.ShippingFee = s.shippingFee
	if strings.TrimSpace(in.DiscountCode) != "" {
		res, err := s.ledger.Validate(ctx, in.DiscountCode, in.UserID, o.Subtotal)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, res.Err()
		}
		o.DiscountCode = res.Code
		o.DiscountAmount = res.DiscountAmount
		if res.FreeShipping {
			o.FreeShipping = true
			o.ShippingFee = 0
		}
	}
	total, ok := addAmounts(o.Subtotal-o.DiscountAmount, o.ShippingFee)
	if !ok {
		return nil, apperr.New(apperr.InvalidInput, "order total is too large")
	}
	o.TotalPrice = total

	if in.IdempotencyKey == "" {
		err = s.machine.Create(ctx, o)
	} else {
		key := idempotency.ScopedKey(idempotency.ScopeCheckout, in.IdempotencyKey)
		put, perr := s.idem.PutOp(s.idem.NewRecord(key, o.OrderID))
		if perr != nil {
			return nil, perr
		}
		err = s.machine.CreateWithIdempotency(ctx, put, o)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_id", o.OrderID),
		zap.String("user_id", o.UserID),
		zap.Int64("subtotal", o.Subtotal),
		zap.Int64("discount_amount", o.DiscountAmount),
		zap.Int64("total_price", o.TotalPrice))
	return o, nil
}

// Replay returns the idempotency record stored for a checkout key, or nil.
func (s *Service) Replay(ctx context.Context, key string) (*idempotency.Record, error) {
	return s.idem.Get(ctx, idempotency.ScopedKey(idempotency.ScopeCheckout, key))
}

// Remember stores the response sent for a checkout key so retries can replay it.
func (s *Service) Remember(ctx context.Context, key, body string, status int) error {
	return s.idem.MarkDone(ctx, idempotency.ScopedKey(idempotency.ScopeCheckout, key), body, status)
}

package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/aws"
	"github.com/imrishuroy/go-phone-storefront/internal/discount"
	"github.com/imrishuroy/go-phone-storefront/internal/inventory"
)

// Machine drives orders through their lifecycle. Every transition is a compare-and-swap
// on the stored status; a failed call leaves order, stock and discount usage unchanged.
type Machine struct {
	store    *Store
	guard    *inventory.Guard
	ledger   *discount.Ledger
	notifier Notifier
	logger   *zap.Logger
	nowFunc  func() time.Time
}

// NewMachine wires a Machine. notifier may be nil.
func NewMachine(store *Store, guard *inventory.Guard, ledger *discount.Ledger, notifier Notifier, logger *zap.Logger) *Machine {
	return &Machine{
		store:    store,
		guard:    guard,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Store exposes the underlying order store for read paths.
func (m *Machine) Store() *Store { return m.store }

func (m *Machine) prepare(o *Order) error {
	if len(o.Items) == 0 {
		return apperr.New(apperr.InvalidInput, "order has no line items")
	}
	for _, li := range o.Items {
		if li.ProductID == "" || li.Quantity <= 0 || li.Price < 0 {
			return apperr.New(apperr.InvalidInput, "invalid line item %q x%d", li.ProductID, li.Quantity)
		}
	}
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	o.Status = StatusPending
	o.RejectionReason = ""
	o.ConfirmedAt, o.CancelledAt, o.ShippedAt, o.DeliveredAt = nil, nil, nil, nil
	return nil
}

// Create stores o as a new pending order. Stock and discount usage are not touched.
func (m *Machine) Create(ctx context.Context, o *Order) error {
	if err := m.prepare(o); err != nil {
		return err
	}
	if err := m.store.Create(ctx, o); err != nil {
		return err
	}
	m.logger.Info("order created", zap.String("order_id", o.OrderID), zap.Int64("total_price", o.TotalPrice))
	return nil
}

// CreateWithIdempotency is Create committed together with an idempotency record.
func (m *Machine) CreateWithIdempotency(ctx context.Context, idem types.TransactWriteItem, o *Order) error {
	if err := m.prepare(o); err != nil {
		return err
	}
	if err := m.store.CreateWithIdempotencyTransaction(ctx, idem, o); err != nil {
		return err
	}
	m.logger.Info("order created", zap.String("order_id", o.OrderID), zap.Int64("total_price", o.TotalPrice))
	return nil
}

// Get returns an order or an OrderNotFound error.
func (m *Machine) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.New(apperr.OrderNotFound, "order %s", orderID)
	}
	return o, nil
}

func invalidTransition(orderID string, from, to Status) error {
	return apperr.New(apperr.OrderInvalidTransition, "order %s: %s -> %s", orderID, from, to)
}

// Confirm moves a pending order to processing. Stock for every line item, the discount
// redemption and the status change commit in one transaction.
func (m *Machine) Confirm(ctx context.Context, orderID string) (*Order, error) {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusProcessing) {
		return nil, invalidTransition(orderID, o.Status, StatusProcessing)
	}

	qty := o.Quantities()
	items := make([]inventory.Item, 0, len(qty))
	for id, q := range qty {
		items = append(items, inventory.Item{ProductID: id, Quantity: q})
	}
	items, err = inventory.Normalize(items)
	if err != nil {
		return nil, err
	}

	now := m.nowFunc().UTC()
	ops := []types.TransactWriteItem{m.store.StatusUpdateOp(orderID, StatusPending, StatusProcessing, now)}
	ops = append(ops, m.guard.DecrementOps(items)...)
	redeemAt := -1
	if o.DiscountCode != "" {
		redeem, err := m.ledger.RedeemOps(ctx, o.DiscountCode, o.UserID, o.OrderID, o.Subtotal)
		if err != nil {
			return nil, err
		}
		redeemAt = len(ops)
		ops = append(ops, redeem...)
	}

	if err := m.store.Transact(ctx, ops); err != nil {
		return nil, m.confirmFailure(ctx, o, items, redeemAt, err)
	}

	// The transaction wrote exactly this; a re-read could already see a later transition.
	confirmed := *o
	confirmed.Status = StatusProcessing
	confirmed.ConfirmedAt = &now
	confirmed.UpdatedAt = now
	m.logger.Info("order confirmed",
		zap.String("order_id", orderID),
		zap.Int("products", len(items)),
		zap.String("discount_code", o.DiscountCode))
	m.emit(ctx, &confirmed, EventConfirmed)
	return &confirmed, nil
}

// confirmFailure maps the cancellation reasons of the confirm transaction, whose items
// are [status, decrements..., redeem ops...], to a typed error.
func (m *Machine) confirmFailure(ctx context.Context, o *Order, items []inventory.Item, redeemAt int, err error) error {
	codes, ok := aws.CancellationCodes(err)
	if !ok || len(codes) == 0 {
		return err
	}
	if codes[0] == aws.ReasonConditionalCheck {
		return apperr.New(apperr.OrderInvalidTransition, "order %s is no longer pending", o.OrderID)
	}
	if stockErr := inventory.CancellationError(items, codes, 1); apperr.IsKind(stockErr, apperr.OrderInsufficientStock) {
		return stockErr
	}
	if redeemAt >= 0 && redeemAt < len(codes) {
		for _, c := range codes[redeemAt:] {
			if c == aws.ReasonConditionalCheck {
				return m.ledger.RedeemFailure(ctx, o.DiscountCode, o.UserID)
			}
		}
	}
	for _, c := range codes {
		if c == aws.ReasonTransactionConflict {
			return apperr.Wrap(apperr.InventoryConflict, err, "concurrent update, retry")
		}
	}
	return err
}

// Reject cancels a pending order. Nothing was decremented or redeemed for it, so
// nothing is restored.
func (m *Machine) Reject(ctx context.Context, orderID, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.New(apperr.OrderRejectReasonRequired, "order %s", orderID)
	}
	return m.transition(ctx, orderID, StatusCancelled, reason)
}

// Advance moves a confirmed order forward: processing -> shipping -> delivered.
func (m *Machine) Advance(ctx context.Context, orderID string, to Status) (*Order, error) {
	if to != StatusShipping && to != StatusDelivered {
		return nil, apperr.New(apperr.OrderInvalidTransition, "order %s: cannot advance to %q", orderID, to)
	}
	return m.transition(ctx, orderID, to, "")
}

func (m *Machine) transition(ctx context.Context, orderID string, to Status, reason string) (*Order, error) {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, invalidTransition(orderID, o.Status, to)
	}
	updated, err := m.store.UpdateStatus(ctx, orderID, o.Status, to, reason)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.New(apperr.OrderInvalidTransition, "order %s changed concurrently, was %s", orderID, o.Status)
	}
	if err != nil {
		return nil, err
	}
	m.logger.Info("order transitioned",
		zap.String("order_id", orderID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)))
	if typ, ok := eventFor(to); ok {
		m.emit(ctx, updated, typ)
	}
	return updated, nil
}

// emit publishes typ for o. The transition has already committed, so a delivery
// failure is logged and not returned.
func (m *Machine) emit(ctx context.Context, o *Order, typ EventType) {
	if m.notifier == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		Type:       typ,
		OrderID:    o.OrderID,
		UserID:     o.UserID,
		Email:      o.ShippingAddress.Email,
		FullName:   o.ShippingAddress.FullName,
		TotalPrice: o.TotalPrice,
		Reason:     o.RejectionReason,
		OccurredAt: m.nowFunc().UTC(),
	}
	if err := m.notifier.Notify(ctx, ev); err != nil {
		m.logger.Warn("order event not delivered",
			zap.String("order_id", o.OrderID),
			zap.String("event", string(typ)),
			zap.Error(err))
	}
}

package orders_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/catalog"
	"github.com/imrishuroy/go-phone-storefront/internal/discount"
	"github.com/imrishuroy/go-phone-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-phone-storefront/internal/inventory"
	"github.com/imrishuroy/go-phone-storefront/internal/mocks"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

type env struct {
	machine  *orders.Machine
	catalog  *catalog.Store
	ledger   *discount.Ledger
	notifier *mocks.MockNotifier
	fake     *dynamotest.Fake
	tx       *txClient
}

// txClient is the order store's client; it lets a test act around TransactWriteItems.
type txClient struct {
	*dynamotest.Fake
	before func() error // a non-nil error replaces the call
	after  func()       // runs once after a successful commit
}

func (c *txClient) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	if c.before != nil {
		if err := c.before(); err != nil {
			return nil, err
		}
	}
	out, err := c.Fake.TransactWriteItems(ctx, in, optFns...)
	if err == nil && c.after != nil {
		after := c.after
		c.after = nil
		after()
	}
	return out, err
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctrl := gomock.NewController(t)
	fake := dynamotest.New().
		CreateTable("products", "product_id").
		CreateTable("discounts", "code").
		CreateTable("discount_usage", "usage_key").
		CreateTable("orders", "order_id")
	tx := &txClient{Fake: fake}

	logger := zap.NewNop()
	ledger := discount.NewLedger(discount.NewStore(fake, "discounts", "discount_usage"), logger)
	notifier := mocks.NewMockNotifier(ctrl)
	m := orders.NewMachine(
		orders.NewStore(tx, "orders"),
		inventory.NewGuard(fake, "products"),
		ledger,
		notifier,
		logger,
	)
	return &env{machine: m, catalog: catalog.NewStore(fake, "products"), ledger: ledger, notifier: notifier, fake: fake, tx: tx}
}

func (e *env) product(t *testing.T, id string, price, stock int64) {
	t.Helper()
	_, err := e.catalog.Put(context.Background(), catalog.Product{ProductID: id, Name: id, Price: price, StockQuantity: stock})
	require.NoError(t, err)
}

func (e *env) stock(t *testing.T, id string) int64 {
	t.Helper()
	p, err := e.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.StockQuantity
}

func (e *env) code(t *testing.T, c discount.Code) {
	t.Helper()
	if c.StartDate.IsZero() {
		c.StartDate = time.Now().Add(-time.Hour)
		c.EndDate = time.Now().Add(24 * time.Hour)
	}
	c.Status = discount.StatusActive
	_, err := e.ledger.Put(context.Background(), c)
	require.NoError(t, err)
}

// place creates a pending order; lines alternate product id and quantity.
func (e *env) place(t *testing.T, userID, code string, lines ...any) *orders.Order {
	t.Helper()
	o := &orders.Order{
		UserID:          userID,
		DiscountCode:    code,
		ShippingAddress: orders.ShippingAddress{FullName: "Tran Thi B", Phone: "0911111111", Email: "b@example.com", Line1: "2 Hai Ba Trung", City: "Ha Noi"},
		PaymentMethod:   orders.PaymentCOD,
	}
	for i := 0; i < len(lines); i += 2 {
		id := lines[i].(string)
		q := int64(lines[i+1].(int))
		o.Items = append(o.Items, orders.LineItem{ProductID: id, Name: id, Price: 1_000_000, Quantity: q})
		o.Subtotal += 1_000_000 * q
	}
	o.TotalPrice = o.Subtotal
	require.NoError(t, e.machine.Create(context.Background(), o))
	require.Equal(t, orders.StatusPending, o.Status)
	return o
}

func (e *env) expectEvent(typ orders.EventType, got *[]orders.Event) *gomock.Call {
	var mu sync.Mutex
	return e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev orders.Event) error {
			mu.Lock()
			defer mu.Unlock()
			if ev.Type != typ {
				return errors.New("unexpected event " + string(ev.Type))
			}
			if got != nil {
				*got = append(*got, ev)
			}
			return nil
		})
}

func TestConfirm_DecrementsStockAndEmits(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	e.product(t, "p2", 1_000_000, 2)
	o := e.place(t, "u1", "", "p1", 2, "p2", 2, "p1", 1)

	var events []orders.Event
	e.expectEvent(orders.EventConfirmed, &events).Times(1)

	got, err := e.machine.Confirm(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, got.Status)
	assert.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, int64(2), e.stock(t, "p1"))
	assert.Equal(t, int64(0), e.stock(t, "p2"))

	require.Len(t, events, 1)
	assert.Equal(t, o.OrderID, events[0].OrderID)
	assert.Equal(t, "b@example.com", events[0].Email)
}

func TestConfirm_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	e.product(t, "p2", 1_000_000, 0)
	o := e.place(t, "u1", "", "p1", 1, "p2", 1)

	_, err := e.machine.Confirm(context.Background(), o.OrderID)
	assert.True(t, apperr.IsKind(err, apperr.OrderInsufficientStock), "got %v", err)

	stored, err := e.machine.Get(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Equal(t, int64(5), e.stock(t, "p1"))
}

func TestConfirm_Sale10Scenario(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 10)
	one := int64(1)
	e.code(t, discount.Code{
		Code:           "SALE10",
		Type:           discount.TypeFixedAmount,
		Value:          500_000,
		MinOrderValue:  1_000_000,
		MaxUses:        &one,
		MaxUsesPerUser: 1,
	})
	ctx := context.Background()

	res, err := e.ledger.Validate(ctx, "sale10", "u1", 1_200_000)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(500_000), res.DiscountAmount)

	o := e.place(t, "u1", "SALE10", "p1", 1)
	e.expectEvent(orders.EventConfirmed, nil).Times(1)
	_, err = e.machine.Confirm(ctx, o.OrderID)
	require.NoError(t, err)

	res, err = e.ledger.Validate(ctx, "SALE10", "u2", 2_000_000)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperr.DiscountExhausted, res.Reason)

	r, err := e.ledger.Redemption(ctx, "SALE10", o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, o.Subtotal, r.OrderValue)
}

func TestConfirm_ExhaustedCodeLeavesStockAndOrderUntouched(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 10)
	one := int64(1)
	e.code(t, discount.Code{Code: "ONCE", Type: discount.TypeFreeShipping, MaxUses: &one, MaxUsesPerUser: 5})
	ctx := context.Background()

	first := e.place(t, "u1", "ONCE", "p1", 1)
	second := e.place(t, "u2", "ONCE", "p1", 1)

	e.expectEvent(orders.EventConfirmed, nil).Times(1)
	_, err := e.machine.Confirm(ctx, first.OrderID)
	require.NoError(t, err)

	_, err = e.machine.Confirm(ctx, second.OrderID)
	assert.True(t, apperr.IsKind(err, apperr.DiscountExhausted), "got %v", err)
	assert.Equal(t, int64(9), e.stock(t, "p1"))

	stored, err := e.machine.Get(ctx, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
}

func TestConfirm_TwiceIsInvalidWithoutSideEffects(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 2)
	ctx := context.Background()

	e.expectEvent(orders.EventConfirmed, nil).Times(1)
	_, err := e.machine.Confirm(ctx, o.OrderID)
	require.NoError(t, err)

	_, err = e.machine.Confirm(ctx, o.OrderID)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "got %v", err)
	assert.Equal(t, int64(3), e.stock(t, "p1"), "no double decrement")
}

func TestConfirm_UnknownOrder(t *testing.T) {
	e := newEnv(t)
	_, err := e.machine.Confirm(context.Background(), "missing")
	assert.True(t, apperr.IsKind(err, apperr.OrderNotFound), "got %v", err)
}

func TestReject(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 1)
	ctx := context.Background()

	_, err := e.machine.Reject(ctx, o.OrderID, "   ")
	assert.True(t, apperr.IsKind(err, apperr.OrderRejectReasonRequired), "got %v", err)

	var events []orders.Event
	e.expectEvent(orders.EventRejected, &events).Times(1)
	got, err := e.machine.Reject(ctx, o.OrderID, "customer unreachable")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, "customer unreachable", got.RejectionReason)
	require.Len(t, events, 1)
	assert.Equal(t, "customer unreachable", events[0].Reason)
	assert.Equal(t, int64(5), e.stock(t, "p1"))

	_, err = e.machine.Reject(ctx, o.OrderID, "again")
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "got %v", err)
	_, err = e.machine.Confirm(ctx, o.OrderID)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "got %v", err)
}

func TestReject_OnlyFromPending(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 1)
	ctx := context.Background()

	e.expectEvent(orders.EventConfirmed, nil).Times(1)
	_, err := e.machine.Confirm(ctx, o.OrderID)
	require.NoError(t, err)

	_, err = e.machine.Reject(ctx, o.OrderID, "changed my mind")
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "got %v", err)
}

func TestAdvance_ForwardOnly(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 1)
	ctx := context.Background()

	_, err := e.machine.Advance(ctx, o.OrderID, orders.StatusShipping)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "pending -> shipping: %v", err)
	_, err = e.machine.Advance(ctx, o.OrderID, orders.StatusDelivered)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "pending -> delivered: %v", err)

	e.expectEvent(orders.EventConfirmed, nil).Times(1)
	_, err = e.machine.Confirm(ctx, o.OrderID)
	require.NoError(t, err)

	_, err = e.machine.Advance(ctx, o.OrderID, orders.StatusDelivered)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "no skipping: %v", err)
	_, err = e.machine.Advance(ctx, o.OrderID, orders.StatusPending)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "no going back: %v", err)

	e.expectEvent(orders.EventShipped, nil).Times(1)
	got, err := e.machine.Advance(ctx, o.OrderID, orders.StatusShipping)
	require.NoError(t, err)
	assert.NotNil(t, got.ShippedAt)

	e.expectEvent(orders.EventDelivered, nil).Times(1)
	got, err = e.machine.Advance(ctx, o.OrderID, orders.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, got.Status)

	_, err = e.machine.Advance(ctx, o.OrderID, orders.StatusShipping)
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "terminal: %v", err)
	_, err = e.machine.Reject(ctx, o.OrderID, "late")
	assert.True(t, apperr.IsKind(err, apperr.OrderInvalidTransition), "terminal: %v", err)
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 1)

	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("queue down"))
	got, err := e.machine.Confirm(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, got.Status)
}

func TestConfirm_ConcurrentNeverOversells(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 3)
	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, e.place(t, "u"+strconv.Itoa(i), "", "p1", 1).OrderID)
	}
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	var (
		wg sync.WaitGroup
		ok int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.machine.Confirm(context.Background(), id)
			if err == nil {
				atomic.AddInt32(&ok, 1)
				return
			}
			if !apperr.IsKind(err, apperr.OrderInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok)
	assert.Equal(t, int64(0), e.stock(t, "p1"))
}

func TestConfirm_ConcurrentPerUserCap(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 100)
	e.code(t, discount.Code{Code: "VIP", Type: discount.TypePercentage, Value: 5, MaxUsesPerUser: 1})

	var ids []string
	for i := 0; i < 8; i++ {
		ids = append(ids, e.place(t, "u1", "VIP", "p1", 1).OrderID)
	}
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	var (
		wg sync.WaitGroup
		ok int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.machine.Confirm(context.Background(), id)
			if err == nil {
				atomic.AddInt32(&ok, 1)
				return
			}
			if !apperr.IsKind(err, apperr.DiscountUserLimitReached) {
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int64(99), e.stock(t, "p1"), "losers must not keep their decrement")
	uses, err := e.ledger.UserUses(context.Background(), "VIP", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), uses)
}

func TestConfirmAndRejectRace_SingleWinner(t *testing.T) {
	for round := 0; round < 20; round++ {
		e := newEnv(t)
		e.product(t, "p1", 1_000_000, 5)
		o := e.place(t, "u1", "", "p1", 1)
		e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		var (
			wg   sync.WaitGroup
			wins int32
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.machine.Confirm(context.Background(), o.OrderID); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.machine.Reject(context.Background(), o.OrderID, "duplicate"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
		wg.Wait()

		require.Equal(t, int32(1), wins)
		stored, err := e.machine.Get(context.Background(), o.OrderID)
		require.NoError(t, err)
		if stored.Status == orders.StatusCancelled {
			assert.Equal(t, int64(5), e.stock(t, "p1"))
		} else {
			assert.Equal(t, int64(4), e.stock(t, "p1"))
		}
	}
}

func TestCreate_RejectsEmptyOrder(t *testing.T) {
	e := newEnv(t)
	err := e.machine.Create(context.Background(), &orders.Order{})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput), "got %v", err)
}

func TestConfirm_EmitsConfirmedWhenAdvancedRightAfterCommit(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 1)
	ctx := context.Background()

	var got []orders.Event
	var mu sync.Mutex
	e.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev orders.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
			return nil
		}).Times(2)
	e.tx.after = func() {
		_, err := e.machine.Advance(ctx, o.OrderID, orders.StatusShipping)
		require.NoError(t, err)
	}

	confirmed, err := e.machine.Confirm(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	require.Len(t, got, 2)
	assert.Equal(t, orders.EventShipped, got[0].Type)
	assert.Equal(t, orders.EventConfirmed, got[1].Type)
}

func TestConfirm_CommittedEvenIfStorageFailsAfterwards(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 2)
	e.expectEvent(orders.EventConfirmed, nil).Times(1)
	e.tx.after = func() { e.fake.Err = assert.AnError }

	confirmed, err := e.machine.Confirm(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, confirmed.Status)

	e.fake.Err = nil
	assert.Equal(t, int64(3), e.stock(t, "p1"))
	stored, err := e.machine.Get(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, stored.Status)
	assert.True(t, stored.ConfirmedAt.Equal(*confirmed.ConfirmedAt), "stored and returned stamps match")
}

func TestConfirm_CancellationWithoutReasons(t *testing.T) {
	e := newEnv(t)
	e.product(t, "p1", 1_000_000, 5)
	o := e.place(t, "u1", "", "p1", 1)
	e.tx.before = func() error { return &types.TransactionCanceledException{} }

	_, err := e.machine.Confirm(context.Background(), o.OrderID)
	require.Error(t, err)
	assert.Equal(t, apperr.Kind(""), apperr.KindOf(err))

	e.tx.before = nil
	assert.Equal(t, int64(5), e.stock(t, "p1"))
}

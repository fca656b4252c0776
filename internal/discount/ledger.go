// Package discount validates and redeems promotion codes.
//
// Validation is a read followed by pure checks. A redemption is a set of conditional
// writes committed in one transaction, so concurrent confirmations cannot overrun
// max_uses or max_uses_per_user.
package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
)

// ErrRedeemRejected is returned by Store.Redeem when the usage condition fails.
var ErrRedeemRejected = errors.New("redeem rejected by usage condition")

// Ledger validates and redeems codes.
type Ledger struct {
	store   *Store
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(store *Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:   store,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Check runs the validation rules in order and stops at the first failure:
// status, validity window, global usage, minimum order value, per-user usage.
// userUses is userID's redemption count. A zero StartDate or EndDate leaves that side
// of the window open.
func Check(c *Code, userID string, userUses, orderValue int64, now time.Time) (Result, error) {
	res := Result{Code: c.Code}
	fail := func(k apperr.Kind) (Result, error) {
		res.Reason = k
		return res, nil
	}

	if c.Status != StatusActive {
		return fail(apperr.DiscountInactive)
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return fail(apperr.DiscountNotStarted)
	}
	if !c.EndDate.IsZero() && !now.Before(c.EndDate) {
		return fail(apperr.DiscountExpired)
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return fail(apperr.DiscountExhausted)
	}
	if orderValue < c.MinOrderValue {
		return fail(apperr.DiscountMinOrderNotMet)
	}
	if userID != "" && userUses >= c.MaxUsesPerUser {
		return fail(apperr.DiscountUserLimitReached)
	}

	amt, err := c.ComputeDiscountAmount(orderValue)
	if err != nil {
		return Result{}, err
	}
	res.Valid = true
	res.DiscountAmount = amt.Value
	res.FreeShipping = amt.FreeShipping
	return res, nil
}

// Validate looks up code and checks it for userID (empty for guests) and orderValue.
// Only storage failures and corrupt definitions are returned as errors.
func (l *Ledger) Validate(ctx context.Context, code, userID string, orderValue int64) (Result, error) {
	norm := NormalizeCode(code)
	if norm == "" {
		return Result{Code: norm, Reason: apperr.DiscountNotFound}, nil
	}
	c, err := l.store.Get(ctx, norm)
	if err != nil {
		return Result{}, err
	}
	if c == nil {
		return Result{Code: norm, Reason: apperr.DiscountNotFound}, nil
	}
	var uses int64
	if userID != "" {
		if uses, err = l.store.UserUses(ctx, norm, userID); err != nil {
			return Result{}, err
		}
	}
	res, err := Check(c, userID, uses, orderValue, l.nowFunc())
	if err != nil {
		return Result{}, err
	}
	if !res.Valid {
		l.logger.Debug("discount rejected",
			zap.String("code", norm),
			zap.String("reason", string(res.Reason)),
			zap.Int64("order_value", orderValue))
	}
	return res, nil
}

// RedeemOps returns the writes of one redemption so they can commit in the same
// transaction as the order confirmation. The first op is the code item; any op failing
// its condition means the redemption is refused (see RedeemFailure).
func (l *Ledger) RedeemOps(ctx context.Context, code, userID, orderID string, orderValue int64) ([]types.TransactWriteItem, error) {
	c, err := l.redeemable(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	return l.store.redeemOps(c.Code, c.MaxUsesPerUser, userID, orderID, orderValue, l.nowFunc())
}

// redeemable loads code for a redemption; unknown codes and users with no allowance
// are refused before any write is built.
func (l *Ledger) redeemable(ctx context.Context, code, userID string) (*Code, error) {
	norm := NormalizeCode(code)
	c, err := l.store.Get(ctx, norm)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.DiscountNotFound, "discount code %q", norm)
	}
	if userID != "" && c.MaxUsesPerUser <= 0 {
		return nil, apperr.New(apperr.DiscountUserLimitReached, "discount code %q, user %q", norm, userID)
	}
	return c, nil
}

// Redeem records one use of code by userID for orderID.
func (l *Ledger) Redeem(ctx context.Context, code, userID, orderID string, orderValue int64) error {
	c, err := l.redeemable(ctx, code, userID)
	if err != nil {
		return err
	}
	err = l.store.Redeem(ctx, c.Code, c.MaxUsesPerUser, userID, orderID, orderValue)
	if errors.Is(err, ErrRedeemRejected) {
		return l.RedeemFailure(ctx, c.Code, userID)
	}
	if err != nil {
		return err
	}
	l.logger.Info("discount redeemed",
		zap.String("code", c.Code),
		zap.String("order_id", orderID),
		zap.String("user_id", userID))
	return nil
}

// RedeemFailure explains why a redemption condition failed by re-reading the code.
func (l *Ledger) RedeemFailure(ctx context.Context, code, userID string) error {
	norm := NormalizeCode(code)
	c, err := l.store.Get(ctx, norm)
	if err != nil {
		return fmt.Errorf("classify redeem failure: %w", err)
	}
	switch {
	case c == nil:
		return apperr.New(apperr.DiscountNotFound, "discount code %q", norm)
	case c.MaxUses != nil && c.UsedCount >= *c.MaxUses:
		return apperr.New(apperr.DiscountExhausted, "discount code %q", norm)
	}
	return apperr.New(apperr.DiscountUserLimitReached, "discount code %q, user %q", norm, userID)
}

// Get returns a code by its (unnormalized) name; nil when unknown.
func (l *Ledger) Get(ctx context.Context, code string) (*Code, error) {
	return l.store.Get(ctx, NormalizeCode(code))
}

// UserUses returns how many times userID has redeemed code.
func (l *Ledger) UserUses(ctx context.Context, code, userID string) (int64, error) {
	return l.store.UserUses(ctx, NormalizeCode(code), userID)
}

// Redemption returns the redemption of code recorded for orderID, or nil.
func (l *Ledger) Redemption(ctx context.Context, code, orderID string) (*Redemption, error) {
	return l.store.Redemption(ctx, NormalizeCode(code), orderID)
}

// Put creates or edits a code after checking its definition.
func (l *Ledger) Put(ctx context.Context, c Code) (*Code, error) {
	c.Code = NormalizeCode(c.Code)
	if c.Code == "" {
		return nil, apperr.New(apperr.InvalidInput, "discount code is required")
	}
	if _, err := c.Rule(); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid discount definition")
	}
	if c.MaxUses != nil && *c.MaxUses < 0 {
		return nil, apperr.New(apperr.InvalidInput, "max_uses must be >= 0")
	}
	if c.MaxUsesPerUser < 0 || c.MinOrderValue < 0 || c.MaxDiscount < 0 {
		return nil, apperr.New(apperr.InvalidInput, "limits must be >= 0")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && !c.EndDate.After(c.StartDate) {
		return nil, apperr.New(apperr.InvalidInput, "end_date must be after start_date")
	}
	switch c.Status {
	case StatusActive, StatusInactive, StatusExpired:
	default:
		return nil, apperr.New(apperr.InvalidInput, "unknown status %q", c.Status)
	}

	// Lowering max_uses_per_user is allowed: users already at or over the new limit are
	// refused from then on, and their past redemptions stand.
	saved, err := l.store.Upsert(ctx, c)
	if errors.Is(err, ErrBelowUsage) {
		return nil, apperr.New(apperr.InvalidInput, "max_uses %d is below the uses already redeemed for %s", *c.MaxUses, c.Code)
	}
	if err != nil {
		return nil, err
	}
	l.logger.Info("discount saved", zap.String("code", saved.Code), zap.String("type", string(saved.Type)))
	return saved, nil
}

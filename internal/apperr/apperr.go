// Package apperr defines the typed error kinds returned by the storefront core.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can branch on it without string matching.
type Kind string

const (
	DiscountInactive         Kind = "DISCOUNT_INACTIVE"
	DiscountNotStarted       Kind = "DISCOUNT_NOT_STARTED"
	DiscountExpired          Kind = "DISCOUNT_EXPIRED"
	DiscountExhausted        Kind = "DISCOUNT_EXHAUSTED"
	DiscountMinOrderNotMet   Kind = "DISCOUNT_MIN_ORDER_NOT_MET"
	DiscountUserLimitReached Kind = "DISCOUNT_USER_LIMIT_REACHED"
	DiscountNotFound         Kind = "DISCOUNT_NOT_FOUND"

	OrderInvalidTransition    Kind = "ORDER_INVALID_TRANSITION"
	OrderInsufficientStock    Kind = "ORDER_INSUFFICIENT_STOCK"
	OrderRejectReasonRequired Kind = "ORDER_REJECT_REASON_REQUIRED"
	OrderNotFound             Kind = "ORDER_NOT_FOUND"

	InventoryConflict Kind = "INVENTORY_CONFLICT"
	ProductNotFound   Kind = "PRODUCT_NOT_FOUND"
	InvalidInput      Kind = "INVALID_INPUT"
)

// Error is a failure tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.Of(k)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Of returns a bare Error of kind k, usable as an errors.Is target.
func Of(k Kind) *Error { return &Error{Kind: k} }

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// HTTPStatus maps a kind to the status code the HTTP layer responds with.
func HTTPStatus(k Kind) int {
	switch k {
	case OrderNotFound, ProductNotFound, DiscountNotFound:
		return http.StatusNotFound
	case OrderInvalidTransition, OrderInsufficientStock, InventoryConflict:
		return http.StatusConflict
	case OrderRejectReasonRequired, InvalidInput:
		return http.StatusBadRequest
	case DiscountInactive, DiscountNotStarted, DiscountExpired, DiscountExhausted,
		DiscountMinOrderNotMet, DiscountUserLimitReached:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("confirm order o1: %w", New(OrderInsufficientStock, "product %s", "p1"))

	if got := KindOf(err); got != OrderInsufficientStock {
		t.Fatalf("expected %s, got %s", OrderInsufficientStock, got)
	}
	if !errors.Is(err, Of(OrderInsufficientStock)) {
		t.Fatalf("errors.Is should match on kind")
	}
	if errors.Is(err, Of(OrderInvalidTransition)) {
		t.Fatalf("errors.Is matched a different kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		OrderNotFound:             http.StatusNotFound,
		OrderInvalidTransition:    http.StatusConflict,
		OrderRejectReasonRequired: http.StatusBadRequest,
		DiscountExhausted:         http.StatusUnprocessableEntity,
		Kind("SOMETHING_ELSE"):    http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := HTTPStatus(k); got != want {
			t.Fatalf("%s: expected %d, got %d", k, want, got)
		}
	}
}

package inventory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/dynamotest"
)

func seed(t *testing.T, fake *dynamotest.Fake, id string, stock int64) {
	t.Helper()
	err := fake.Seed("products", map[string]types.AttributeValue{
		"product_id":     &types.AttributeValueMemberS{Value: id},
		"stock_quantity": &types.AttributeValueMemberN{Value: strconv.FormatInt(stock, 10)},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func stockOf(t *testing.T, fake *dynamotest.Fake, id string) int64 {
	t.Helper()
	it := fake.Item("products", id)
	if it == nil {
		t.Fatalf("product %s missing", id)
	}
	v, err := strconv.ParseInt(it["stock_quantity"].(*types.AttributeValueMemberN).Value, 10, 64)
	if err != nil {
		t.Fatalf("parse stock: %v", err)
	}
	return v
}

func newGuard() (*Guard, *dynamotest.Fake) {
	fake := dynamotest.New().CreateTable("products", "product_id")
	return NewGuard(fake, "products"), fake
}

func TestDecrement_Success(t *testing.T) {
	g, fake := newGuard()
	seed(t, fake, "p1", 5)
	seed(t, fake, "p2", 2)

	err := g.Decrement(context.Background(), []Item{{"p1", 3}, {"p2", 2}})
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got := stockOf(t, fake, "p1"); got != 2 {
		t.Fatalf("p1 expected 2, got %d", got)
	}
	if got := stockOf(t, fake, "p2"); got != 0 {
		t.Fatalf("p2 expected 0, got %d", got)
	}
}

func TestDecrement_AllOrNothing(t *testing.T) {
	g, fake := newGuard()
	seed(t, fake, "p1", 5)
	seed(t, fake, "p2", 0)

	err := g.Decrement(context.Background(), []Item{{"p1", 1}, {"p2", 1}})
	if !apperr.IsKind(err, apperr.OrderInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, fake, "p1"); got != 5 {
		t.Fatalf("p1 must be untouched, got %d", got)
	}
}

func TestDecrement_UnknownProductIsInsufficient(t *testing.T) {
	g, _ := newGuard()

	err := g.Decrement(context.Background(), []Item{{"ghost", 1}})
	if !apperr.IsKind(err, apperr.OrderInsufficientStock) {
		t.Fatalf("expected insufficient stock for unknown product, got %v", err)
	}
}

func TestNormalize_MergesDuplicates(t *testing.T) {
	got, err := Normalize([]Item{{"b", 1}, {"a", 2}, {"b", 3}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 || got[0] != (Item{"a", 2}) || got[1] != (Item{"b", 4}) {
		t.Fatalf("unexpected normalized items %+v", got)
	}

	if _, err := Normalize([]Item{{"a", 0}}); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if _, err := Normalize(nil); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("expected invalid input for empty list, got %v", err)
	}
}

func TestDecrement_ConcurrentNeverOversells(t *testing.T) {
	g, fake := newGuard()
	seed(t, fake, "last-units", 3)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Decrement(context.Background(), []Item{{"last-units", 1}}); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 3 {
		t.Fatalf("expected exactly 3 successful decrements, got %d", wins)
	}
	if got := stockOf(t, fake, "last-units"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCancellationError_Conflict(t *testing.T) {
	items := []Item{{"p1", 1}, {"p2", 1}}
	err := CancellationError(items, []string{"None", "None", "TransactionConflict"}, 1)
	if !apperr.IsKind(err, apperr.InventoryConflict) {
		t.Fatalf("expected inventory conflict, got %v", err)
	}
	if err := CancellationError(items, []string{"ConditionalCheckFailed", "None", "None"}, 1); err != nil {
		t.Fatalf("failure outside decrement ops must be ignored, got %v", err)
	}
}

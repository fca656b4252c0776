package catalog

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-phone-storefront/internal/dynamotest"
)

func TestPutGet(t *testing.T) {
	fake := dynamotest.New().CreateTable("products", "product_id")
	store := NewStore(fake, "products")
	ctx := context.Background()

	if _, err := store.Put(ctx, Product{ProductID: "iphone-15", Name: "iPhone 15", Price: 21990000, StockQuantity: 4}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "iphone-15")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "iPhone 15" || got.StockQuantity != 4 {
		t.Fatalf("unexpected product %+v", got)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing product, got %+v %v", missing, err)
	}
}

func TestPut_RejectsNegativeStock(t *testing.T) {
	fake := dynamotest.New().CreateTable("products", "product_id")
	store := NewStore(fake, "products")

	if _, err := store.Put(context.Background(), Product{ProductID: "p", StockQuantity: -1}); err == nil {
		t.Fatal("expected error for negative stock")
	}
}

package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
	"github.com/imrishuroy/go-phone-storefront/internal/dynamotest"
)

func newStore() (*Store, *dynamotest.Fake) {
	fake := dynamotest.New().CreateTable("idempotency-table", "idempotency_key")
	return NewStore(fake, "idempotency-table", 48*time.Hour), fake
}

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	s, fake := newStore()
	ctx := context.Background()
	key := ScopedKey(ScopeCheckout, "test-key-1")
	orderID := "order-123"

	created, err := s.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.OrderID != orderID {
		t.Fatalf("order id mismatch")
	}
	if rec.ExpiresAt <= rec.CreatedAt.Unix() {
		t.Fatalf("expires_at must be after created_at")
	}

	if err := s.MarkDone(ctx, key, "{\"ok\":true}", 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := fake.Item("idempotency-table", key)
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != "{\"ok\":true}" {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	// DONE is final
	if err := s.MarkFailed(ctx, key, "late failure"); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
}

func TestMarkFailed_AllowsReclaim(t *testing.T) {
	s, fake := newStore()
	ctx := context.Background()
	key := ScopedKey(ScopeEvent, "evt-1")

	if _, err := s.CreateIfNotExists(ctx, key, "o1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkFailed(ctx, key, "smtp down"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item := fake.Item("idempotency-table", key)
	if n, ok := item["note"].(*types.AttributeValueMemberS); !ok || n.Value != "smtp down" {
		t.Fatalf("note not set, got %+v", item["note"])
	}

	created, err := s.CreateIfNotExists(ctx, key, "o1")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !created {
		t.Fatalf("a FAILED key must be claimable again")
	}
}

func TestMarkDone_UnknownKey(t *testing.T) {
	s, _ := newStore()
	if err := s.MarkDone(context.Background(), "nope", "{}", 200); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
}

func TestPutOp_RejectsExistingKeyInTransaction(t *testing.T) {
	s, fake := newStore()
	ctx := context.Background()
	key := ScopedKey(ScopeCheckout, "k2")

	op, err := s.PutOp(s.NewRecord(key, "o1"))
	if err != nil {
		t.Fatalf("PutOp: %v", err)
	}
	if _, err := fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{op}}); err != nil {
		t.Fatalf("first transact: %v", err)
	}

	_, err = fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{op}})
	codes, ok := aws.CancellationCodes(err)
	if !ok || codes[0] != aws.ReasonConditionalCheck {
		t.Fatalf("expected conditional cancellation, got %v", err)
	}
}

func TestGet_Missing(t *testing.T) {
	s, _ := newStore()
	rec, err := s.Get(context.Background(), "missing")
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", rec, err)
	}
}

// Package inventory adjusts per-product stock with conditional writes against the
// products table. There is no in-process copy of any stock level.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/aws"
)

// MaxItems is the most distinct products one decrement may touch. DynamoDB caps a
// transaction at 100 operations; confirm also needs one for the order and up to three
// for a discount redemption.
const MaxItems = 96

const (
	decrementUpdate    = "SET stock_quantity = stock_quantity - :qty, updated_at = :ua"
	decrementCondition = "attribute_exists(product_id) AND stock_quantity >= :qty"
)

// Item is a quantity of one product.
type Item struct {
	ProductID string
	Quantity  int64
}

// Guard performs all-or-nothing stock decrements.
type Guard struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewGuard returns a Guard over the products table.
func NewGuard(client aws.DynamoDBAPI, tableName string) *Guard {
	return &Guard{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Normalize merges repeated products and sorts by product id. A transaction may not
// touch the same item twice, so callers must decrement the merged list.
func Normalize(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "no items to decrement")
	}
	byID := map[string]int64{}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, apperr.New(apperr.InvalidInput, "invalid item %q x%d", it.ProductID, it.Quantity)
		}
		byID[it.ProductID] += it.Quantity
	}
	if len(byID) > MaxItems {
		return nil, apperr.New(apperr.InvalidInput, "too many distinct products: %d", len(byID))
	}
	out := make([]Item, 0, len(byID))
	for id, q := range byID {
		out = append(out, Item{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// DecrementOps builds one conditional update per (normalized) item, for inclusion in a
// larger transaction.
func (g *Guard) DecrementOps(items []Item) []types.TransactWriteItem {
	ua := g.nowFunc().UTC().Format(time.RFC3339)
	ops := make([]types.TransactWriteItem, 0, len(items))
	for _, it := range items {
		ops = append(ops, types.TransactWriteItem{
			Update: &types.Update{
				TableName: &g.tableName,
				Key: map[string]types.AttributeValue{
					"product_id": &types.AttributeValueMemberS{Value: it.ProductID},
				},
				UpdateExpression:    aws.String(decrementUpdate),
				ConditionExpression: aws.String(decrementCondition),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":qty": &types.AttributeValueMemberN{Value: strconv.FormatInt(it.Quantity, 10)},
					":ua":  &types.AttributeValueMemberS{Value: ua},
				},
			},
		})
	}
	return ops
}

// Decrement removes every item's quantity from stock, or nothing at all.
func (g *Guard) Decrement(ctx context.Context, items []Item) error {
	norm, err := Normalize(items)
	if err != nil {
		return err
	}
	_, err = g.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: g.DecrementOps(norm),
	})
	if err == nil {
		return nil
	}
	if codes, ok := aws.CancellationCodes(err); ok {
		return CancellationError(norm, codes, 0)
	}
	return fmt.Errorf("decrement stock: %w", err)
}

// CancellationError interprets the reason codes of a canceled transaction whose
// decrement ops start at offset. It returns nil when no decrement op failed.
func CancellationError(items []Item, codes []string, offset int) error {
	conflict := false
	for i, it := range items {
		if offset+i >= len(codes) {
			break
		}
		switch codes[offset+i] {
		case aws.ReasonConditionalCheck:
			return apperr.New(apperr.OrderInsufficientStock, "product %s: insufficient stock for %d", it.ProductID, it.Quantity)
		case aws.ReasonTransactionConflict:
			conflict = true
		}
	}
	if conflict {
		return apperr.New(apperr.InventoryConflict, "concurrent stock update, retry")
	}
	return nil
}

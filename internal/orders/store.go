package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
)

var (
	// ErrStatusMismatch is returned when the order is not in the expected status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateKey is returned when the idempotency key guarding a create already exists.
	ErrDuplicateKey = errors.New("idempotency key already used")
	// ErrOrderExists is returned when an order with the same id is already stored.
	ErrOrderExists = errors.New("order already exists")
)

// stampAttr is the timestamp attribute set when an order enters a status.
var stampAttr = map[Status]string{
	StatusProcessing: "confirmed_at",
	StatusCancelled:  "cancelled_at",
	StatusShipping:   "shipped_at",
	StatusDelivered:  "delivered_at",
}

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func (s *Store) marshalNew(order *Order) (map[string]types.AttributeValue, error) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return item, nil
}

// Create stores a new order. order.OrderID must be set by caller.
func (s *Store) Create(ctx context.Context, order *Order) error {
	item, err := s.marshalNew(order)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return ErrOrderExists
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates the idempotency record (idem, a
// conditional Put built by the idempotency store) and the order. Returns ErrDuplicateKey
// when the key was already used; nothing is written in that case.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idem types.TransactWriteItem, order *Order) error {
	item, err := s.marshalNew(order)
	if err != nil {
		return err
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			idem,
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(order_id)"),
				},
			},
		},
	})
	if err == nil {
		return nil
	}
	if codes, ok := aws.CancellationCodes(err); ok {
		switch {
		case len(codes) > 0 && codes[0] == aws.ReasonConditionalCheck:
			return ErrDuplicateKey
		case len(codes) > 1 && codes[1] == aws.ReasonConditionalCheck:
			return ErrOrderExists
		}
	}
	return fmt.Errorf("transact write: %w", err)
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// statusUpdate is the compare-and-swap on status: it applies only while the stored
// status equals expected. at stamps updated_at and the status timestamp; reason is
// stored as rejection_reason when non-empty.
func (s *Store) statusUpdate(orderID string, expected, newStatus Status, reason string, at time.Time) *types.Update {
	ua := &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)}
	update := "SET #s = :new, updated_at = :ua"
	if attr, ok := stampAttr[newStatus]; ok {
		update += ", " + attr + " = :ua"
	}
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
		":ua":       ua,
	}
	if reason != "" {
		update += ", rejection_reason = :reason"
		values[":reason"] = &types.AttributeValueMemberS{Value: reason}
	}
	return &types.Update{
		TableName:                 &s.tableName,
		Key:                       s.key(orderID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	}
}

// StatusUpdateOp returns the status compare-and-swap, stamped at, as a transaction item.
func (s *Store) StatusUpdateOp(orderID string, expected, newStatus Status, at time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{Update: s.statusUpdate(orderID, expected, newStatus, "", at)}
}

// UpdateStatus conditionally updates the order status from expected -> newStatus and
// returns the updated order. Returns ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, newStatus Status, reason string) (*Order, error) {
	u := s.statusUpdate(orderID, expected, newStatus, reason, s.nowFunc())
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transact commits ops as one DynamoDB transaction. A canceled transaction is returned
// wrapped so aws.CancellationCodes can inspect it.
func (s *Store) Transact(ctx context.Context, ops []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: ops})
	if err != nil {
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

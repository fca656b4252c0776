package discount

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
)

// ErrBelowUsage is returned by Upsert when max_uses would drop below used_count.
var ErrBelowUsage = errors.New("max_uses below used_count")

// Store persists discount codes in one table and their usage (redemptions and
// per-user counters) as separate items in another.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	usageTable string
	nowFunc    func() time.Time
}

// NewStore creates a discount Store.
func NewStore(client aws.DynamoDBAPI, tableName, usageTable string) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		usageTable: usageTable,
		nowFunc:    time.Now,
	}
}

func (s *Store) key(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code": &types.AttributeValueMemberS{Value: code},
	}
}

func (s *Store) usageKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"usage_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Get fetches a code (already normalized). Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, code string) (*Code, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get discount: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Code
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal discount: %w", err)
	}
	return &c, nil
}

// UserUses returns how many times userID has redeemed code.
func (s *Store) UserUses(ctx context.Context, code, userID string) (int64, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.usageTable,
		Key:            s.usageKey(userUsageKey(code, userID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("get user usage: %w", err)
	}
	if len(out.Item) == 0 {
		return 0, nil
	}
	var u UserUsage
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return 0, fmt.Errorf("unmarshal user usage: %w", err)
	}
	return u.Uses, nil
}

// Redemption returns the redemption of code by orderID, or nil.
func (s *Store) Redemption(ctx context.Context, code, orderID string) (*Redemption, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.usageTable,
		Key:            s.usageKey(redemptionKey(code, orderID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Redemption
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal redemption: %w", err)
	}
	return &r, nil
}

// Upsert writes the admin-editable fields of a code. used_count is initialized on first
// write and never overwritten; a max_uses below it fails with ErrBelowUsage.
func (s *Store) Upsert(ctx context.Context, c Code) (*Code, error) {
	now := s.nowFunc().UTC()
	values := map[string]types.AttributeValue{
		":zero": &types.AttributeValueMemberN{Value: "0"},
	}
	fields := []struct {
		placeholder string
		v           interface{}
	}{
		{":type", c.Type},
		{":value", c.Value},
		{":md", c.MaxDiscount},
		{":mov", c.MinOrderValue},
		{":sd", c.StartDate.UTC()},
		{":ed", c.EndDate.UTC()},
		{":mpu", c.MaxUsesPerUser},
		{":status", c.Status},
		{":ua", now},
	}
	for _, f := range fields {
		av, err := attributevalue.Marshal(f.v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.placeholder, err)
		}
		values[f.placeholder] = av
	}

	sets := []string{
		"#t = :type", "#v = :value", "max_discount = :md", "min_order_value = :mov",
		"start_date = :sd", "end_date = :ed", "max_uses_per_user = :mpu", "#st = :status",
		"updated_at = :ua", "created_at = if_not_exists(created_at, :ua)",
		"used_count = if_not_exists(used_count, :zero)",
	}
	in := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key:       s.key(c.Code),
		ExpressionAttributeNames: map[string]string{
			"#t":  "type",
			"#v":  "value",
			"#st": "status",
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if c.MaxUses != nil {
		values[":mu"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*c.MaxUses, 10)}
		sets = append(sets, "max_uses = :mu")
		in.UpdateExpression = aws.String("SET " + strings.Join(sets, ", "))
		in.ConditionExpression = aws.String("attribute_not_exists(used_count) OR used_count <= :mu")
	} else {
		in.UpdateExpression = aws.String("SET " + strings.Join(sets, ", ") + " REMOVE max_uses")
	}

	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return nil, ErrBelowUsage
		}
		return nil, fmt.Errorf("upsert discount: %w", err)
	}
	var saved Code
	if err := attributevalue.UnmarshalMap(out.Attributes, &saved); err != nil {
		return nil, fmt.Errorf("unmarshal discount: %w", err)
	}
	return &saved, nil
}

// redeemOps builds the writes of one redemption, in this order:
//
//	[0] conditional increment of used_count on the code item
//	[1] the redemption item, once per order
//	[2] the user's counter, only when userID is set
//
// perUser is the code's max_uses_per_user as read by the caller; the code item update
// requires it unchanged so the counter condition cannot use a stale limit.
func (s *Store) redeemOps(code string, perUser int64, userID, orderID string, orderValue int64, now time.Time) ([]types.TransactWriteItem, error) {
	now = now.UTC()
	ua := &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}
	one := &types.AttributeValueMemberN{Value: "1"}
	limit := &types.AttributeValueMemberN{Value: strconv.FormatInt(perUser, 10)}

	cond := "attribute_exists(#c) AND (attribute_not_exists(max_uses) OR used_count < max_uses)"
	values := map[string]types.AttributeValue{":one": one, ":ua": ua}
	if userID != "" {
		cond += " AND max_uses_per_user = :limit"
		values[":limit"] = limit
	}
	ops := []types.TransactWriteItem{{Update: &types.Update{
		TableName:                 &s.tableName,
		Key:                       s.key(code),
		UpdateExpression:          aws.String("SET used_count = used_count + :one, updated_at = :ua"),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  map[string]string{"#c": "code"},
		ExpressionAttributeValues: values,
	}}}

	rec, err := attributevalue.MarshalMap(Redemption{
		UsageKey:   redemptionKey(code, orderID),
		Code:       code,
		UserID:     userID,
		OrderID:    orderID,
		OrderValue: orderValue,
		UsedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal redemption: %w", err)
	}
	ops = append(ops, types.TransactWriteItem{Put: &types.Put{
		TableName:           &s.usageTable,
		Item:                rec,
		ConditionExpression: aws.String("attribute_not_exists(usage_key)"),
	}})

	if userID != "" {
		ops = append(ops, types.TransactWriteItem{Update: &types.Update{
			TableName:           &s.usageTable,
			Key:                 s.usageKey(userUsageKey(code, userID)),
			UpdateExpression:    aws.String("SET uses = if_not_exists(uses, :zero) + :one, #c = :code, user_id = :uid, updated_at = :ua"),
			ConditionExpression: aws.String("attribute_not_exists(uses) OR uses < :limit"),
			ExpressionAttributeNames: map[string]string{
				"#c": "code",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":zero":  &types.AttributeValueMemberN{Value: "0"},
				":one":   one,
				":limit": limit,
				":code":  &types.AttributeValueMemberS{Value: code},
				":uid":   &types.AttributeValueMemberS{Value: userID},
				":ua":    ua,
			},
		}})
	}
	return ops, nil
}

// Redeem commits redeemOps on their own. It returns ErrRedeemRejected when a usage
// limit (or the code's existence) fails its condition.
func (s *Store) Redeem(ctx context.Context, code string, perUser int64, userID, orderID string, orderValue int64) error {
	ops, err := s.redeemOps(code, perUser, userID, orderID, orderValue, s.nowFunc())
	if err != nil {
		return err
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: ops})
	if err != nil {
		if codes, ok := aws.CancellationCodes(err); ok {
			for _, c := range codes {
				if c == aws.ReasonConditionalCheck {
					return ErrRedeemRejected
				}
			}
		}
		return fmt.Errorf("redeem discount: %w", err)
	}
	return nil
}

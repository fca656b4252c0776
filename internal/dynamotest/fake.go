// Package dynamotest provides an in-memory DynamoDB stand-in for store tests.
//
// Every call runs under one mutex, so a single UpdateItem or TransactWriteItems is
// atomic the way it is against the real service.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Fake implements aws.DynamoDBAPI over in-memory tables keyed by a single string hash key.
type Fake struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]item

	// Err, when set, is returned by every call (simulates a storage outage).
	Err error

	GetCalls      int
	PutCalls      int
	UpdateCalls   int
	TransactCalls int
}

// New returns an empty fake. Tables must be registered with CreateTable.
func New() *Fake {
	return &Fake{
		keys:   map[string]string{},
		tables: map[string]map[string]item{},
	}
}

// CreateTable registers a table and the name of its string hash key.
func (f *Fake) CreateTable(name, hashKey string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = hashKey
	if _, ok := f.tables[name]; !ok {
		f.tables[name] = map[string]item{}
	}
	return f
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(it)
}

// Seed stores an item unconditionally.
func (f *Fake) Seed(table string, it map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, err := f.keyOf(table, it)
	if err != nil {
		return err
	}
	f.tables[table][k] = copyItem(it)
	return nil
}

// Len returns the number of items in a table.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *Fake) keyOf(table string, it map[string]types.AttributeValue) (string, error) {
	hk, ok := f.keys[table]
	if !ok {
		return "", validationErr(fmt.Sprintf("requested resource not found: table %s", table))
	}
	s, ok := it[hk].(*types.AttributeValueMemberS)
	if !ok {
		return "", validationErr(fmt.Sprintf("missing key attribute %s", hk))
	}
	return s.Value, nil
}

func validationErr(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
}

func check(it item, expr *string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || *expr == "" {
		return true, nil
	}
	c, err := parseCondition(*expr, names, values)
	if err != nil {
		return false, validationErr(err.Error())
	}
	if it == nil {
		it = item{}
	}
	return c(it), nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	k, err := f.keyOf(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	it, ok := f.tables[*params.TableName][k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(it)}, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	table := *params.TableName
	k, err := f.keyOf(table, params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := check(f.tables[table][k], params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	f.tables[table][k] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	updated, err := f.prepareUpdate(params.TableName, params.Key, params.UpdateExpression, params.ConditionExpression,
		params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	k, _ := f.keyOf(*params.TableName, params.Key)
	f.tables[*params.TableName][k] = updated

	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(updated)
	}
	return out, nil
}

// prepareUpdate checks the condition and computes the new item without storing it.
func (f *Fake) prepareUpdate(table *string, key map[string]types.AttributeValue, update, cond *string,
	names map[string]string, values map[string]types.AttributeValue) (item, error) {
	k, err := f.keyOf(*table, key)
	if err != nil {
		return nil, err
	}
	current := f.tables[*table][k]
	ok, err := check(current, cond, names, values)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	base := item{}
	if current != nil {
		base = current
	} else {
		for name, v := range key {
			base[name] = v
		}
	}
	if update == nil {
		return copyItem(base), nil
	}
	plan, err := parseUpdate(*update, names, values)
	if err != nil {
		return nil, validationErr(err.Error())
	}
	updated, err := plan.apply(base)
	if err != nil {
		return nil, validationErr(err.Error())
	}
	return updated, nil
}

type pendingWrite struct {
	table  string
	key    string
	item   item
	delete bool
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransactCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	if len(params.TransactItems) > 100 {
		return nil, validationErr("transaction exceeds 100 items")
	}

	seen := map[string]bool{}
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	writes := make([]pendingWrite, 0, len(params.TransactItems))
	failed := false

	for i, ti := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}

		var (
			table string
			key   map[string]types.AttributeValue
			w     *pendingWrite
			err   error
		)
		switch {
		case ti.Put != nil:
			table = *ti.Put.TableName
			key = ti.Put.Item
			var ok bool
			k, kerr := f.keyOf(table, key)
			if kerr != nil {
				return nil, kerr
			}
			ok, err = check(f.tables[table][k], ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues)
			if err == nil && !ok {
				err = conditionFailed()
			}
			w = &pendingWrite{table: table, key: k, item: copyItem(ti.Put.Item)}
		case ti.Update != nil:
			table = *ti.Update.TableName
			key = ti.Update.Key
			var updated item
			updated, err = f.prepareUpdate(ti.Update.TableName, key, ti.Update.UpdateExpression, ti.Update.ConditionExpression,
				ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues)
			k, _ := f.keyOf(table, key)
			w = &pendingWrite{table: table, key: k, item: updated}
		case ti.ConditionCheck != nil:
			table = *ti.ConditionCheck.TableName
			key = ti.ConditionCheck.Key
			_, err = f.prepareUpdate(ti.ConditionCheck.TableName, key, nil, ti.ConditionCheck.ConditionExpression,
				ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues)
		case ti.Delete != nil:
			table = *ti.Delete.TableName
			key = ti.Delete.Key
			_, err = f.prepareUpdate(ti.Delete.TableName, key, nil, ti.Delete.ConditionExpression,
				ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues)
			k, _ := f.keyOf(table, key)
			w = &pendingWrite{table: table, key: k, delete: true}
		default:
			return nil, validationErr("empty transact item")
		}

		k, kerr := f.keyOf(table, key)
		if kerr != nil {
			return nil, kerr
		}
		if seen[table+"/"+k] {
			return nil, validationErr("Transaction request cannot include multiple operations on one item")
		}
		seen[table+"/"+k] = true

		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if !errors.As(err, &ccf) {
				return nil, err
			}
			reasons[i] = types.CancellationReason{
				Code:    sdkaws.String("ConditionalCheckFailed"),
				Message: sdkaws.String("The conditional request failed"),
			}
			failed = true
			continue
		}
		if w != nil {
			writes = append(writes, *w)
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		if w.delete {
			delete(f.tables[w.table], w.key)
			continue
		}
		f.tables[w.table][w.key] = w.item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

package aws

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Cancellation reason codes reported by TransactWriteItems.
const (
	ReasonNone                = "None"
	ReasonConditionalCheck    = "ConditionalCheckFailed"
	ReasonTransactionConflict = "TransactionConflict"
)

// CancellationCodes extracts the per-item reason codes from a canceled transaction.
// ok is false when err is not a TransactionCanceledException.
func CancellationCodes(err error) (codes []string, ok bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false
	}
	codes = make([]string, len(tce.CancellationReasons))
	for i, r := range tce.CancellationReasons {
		if r.Code != nil {
			codes[i] = *r.Code
		} else {
			codes[i] = ReasonNone
		}
	}
	return codes, true
}

// IsConditionalCheckFailed reports whether err is a failed single-item condition.
func IsConditionalCheckFailed(err error) bool {
	var sc *types.ConditionalCheckFailedException
	return errors.As(err, &sc)
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

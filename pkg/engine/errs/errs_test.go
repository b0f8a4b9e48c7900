package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("list tables: %w", E(KindProviderThrottled, "dynamodb.ListTables", errors.New("rate exceeded")))

	assert.ErrorIs(t, err, ErrProviderThrottled)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, KindProviderThrottled, KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(KindPricingDataMissing, "pricing.Price", "no price %q", "dynamodb.rcu_hour").WithResource("orders")
	assert.Equal(t, `pricing.Price: PricingDataMissing (resource: orders): no price "dynamodb.rcu_hour"`, err.Error())
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, KindProviderThrottled.Retryable())
	assert.True(t, KindProviderUnavailable.Retryable())
	assert.False(t, KindInvalidRuleConfiguration.Retryable())
	assert.False(t, KindInvariantViolation.Retryable())
}

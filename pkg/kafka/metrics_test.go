package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome_CountsPerLabel(t *testing.T) {
	processed := TriggerMessages.WithLabelValues("metrics-topic", "metrics-group", OutcomeProcessed)
	failed := TriggerMessages.WithLabelValues("metrics-topic", "metrics-group", OutcomeFailed)
	beforeProcessed := testutil.ToFloat64(processed)
	beforeFailed := testutil.ToFloat64(failed)

	outcome("metrics-topic", "metrics-group", OutcomeProcessed)
	outcome("metrics-topic", "metrics-group", OutcomeProcessed)

	assert.Equal(t, beforeProcessed+2, testutil.ToFloat64(processed))
	assert.Equal(t, beforeFailed, testutil.ToFloat64(failed))
}

func TestOutcomeFromContext_UsesDelivery(t *testing.T) {
	c := TriggerMessages.WithLabelValues("catalog.product.updated", "indexer-test", OutcomeDuplicate)
	before := testutil.ToFloat64(c)

	ctx := withDelivery(context.Background(), "catalog.product.updated", "indexer-test")
	outcomeFromContext(ctx, OutcomeDuplicate)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestOutcomeFromContext_NoDelivery(t *testing.T) {
	c := TriggerMessages.WithLabelValues("", "", OutcomeDuplicate)
	before := testutil.ToFloat64(c)

	outcomeFromContext(context.Background(), OutcomeDuplicate)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestObserveSince(t *testing.T) {
	before := testutil.CollectAndCount(TriggerHandleDuration)
	observeSince("observe-topic", "observe-group", time.Now().Add(-10*time.Millisecond))
	assert.Equal(t, before+1, testutil.CollectAndCount(TriggerHandleDuration))
}

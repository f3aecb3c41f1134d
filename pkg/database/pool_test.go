package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff_ExponentialWithJitter(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := defaultRetryBaseWait << attempt
		minExpected := time.Duration(float64(base) * (1 - retryJitterFraction))
		maxExpected := time.Duration(float64(base) * (1 + retryJitterFraction))

		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, minExpected, "attempt %d", attempt)
			assert.LessOrEqual(t, d, maxExpected, "attempt %d", attempt)
		}
	}
}

func TestRetryBackoff_NegativeAttempt(t *testing.T) {
	d := retryBackoff(-3)
	assert.LessOrEqual(t, d, time.Duration(float64(defaultRetryBaseWait)*(1+retryJitterFraction)))
}

func TestSleepRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepRetry(ctx, 2, nil, "retrying", errStr("dial tcp"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(errStr("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, isConnectionError(errStr("connection reset by peer")))
	assert.True(t, isConnectionError(errStr("broken pipe")))
	assert.True(t, isConnectionError(errStr("i/o timeout")))
	assert.True(t, isConnectionError(errStr("unexpected EOF")))
	assert.True(t, isConnectionError(errStr("could not connect to server")))
	assert.False(t, isConnectionError(errStr("syntax error at or near")))
	assert.False(t, isConnectionError(errStr("relation \"product\" does not exist")))
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.Host = "db"
	cfg.DBName = "ofbiz"
	assert.Equal(t, "postgres://catalog:catalog_secret@db:5432/ofbiz?sslmode=disable", cfg.DSN())
}

type errStr string

func (e errStr) Error() string { return string(e) }

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
)

func failingProcess(calls *int) goredis.ProcessHook {
	return func(context.Context, goredis.Cmder) error {
		*calls++
		return errors.New("connection refused")
	}
}

func TestCircuitBreakerHook_NormalOperation(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	for range 10 {
		assert.NoError(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_NilReplyIsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAfterSustainedFailures(t *testing.T) {
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	hook := newCircuitBreakerHook(time.Hour, m)
	ctx := context.Background()

	calls := 0
	process := hook.ProcessHook(failingProcess(&calls))
	for range 5 {
		err := process(ctx, goredis.NewCmd(ctx, "evalsha"))
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	err := process(ctx, goredis.NewCmd(ctx, "evalsha"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls, "open circuit must not reach redis")

	assert.InDelta(t, 2, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis")), 0)
}

func TestCircuitBreakerHook_RecoversAfterDelay(t *testing.T) {
	hook := newCircuitBreakerHook(50*time.Millisecond, nil)
	ctx := context.Background()

	calls := 0
	failing := hook.ProcessHook(failingProcess(&calls))
	for range 5 {
		_ = failing(ctx, goredis.NewCmd(ctx, "evalsha"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	time.Sleep(80 * time.Millisecond)

	healthy := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	require.NoError(t, healthy(ctx, goredis.NewCmd(ctx, "evalsha")))
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_Pipeline(t *testing.T) {
	hook := newCircuitBreakerHook(time.Hour, nil)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error {
		return errors.New("broken pipe")
	})
	for range 5 {
		assert.Error(t, pipeline(ctx, nil))
	}

	assert.ErrorIs(t, pipeline(ctx, nil), circuitbreaker.ErrOpen)
}

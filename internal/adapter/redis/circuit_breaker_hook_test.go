package redis

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateRecorder struct {
	states []string
}

func (r *stateRecorder) RecordBreakerState(state string) { r.states = append(r.states, state) }

func process(hook *CircuitBreakerHook, result error) error {
	ctx := context.Background()
	run := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return result })
	return run(ctx, goredis.NewStringCmd(ctx, "get", "key"))
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)

	for range 10 {
		require.NoError(t, process(hook, nil))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_MissingKeyIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)

	for range 10 {
		assert.ErrorIs(t, process(hook, goredis.Nil), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	rec := &stateRecorder{}
	hook := NewCircuitBreakerHook(rec)
	boom := errors.New("connection timeout")

	for range 5 {
		assert.ErrorIs(t, process(hook, boom), boom)
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())
	assert.Equal(t, []string{circuitbreaker.OpenState.String()}, rec.states)

	called := false
	run := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	ctx := context.Background()
	err := run(ctx, goredis.NewStringCmd(ctx, "get", "key"))

	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreakerHook_DialFailuresOpenTheBreaker(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	dial := hook.DialHook(func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("refused")
	})

	for range 5 {
		_, err := dial(context.Background(), "tcp", "localhost:6379")
		require.Error(t, err)
	}

	_, err := dial(context.Background(), "tcp", "localhost:6379")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

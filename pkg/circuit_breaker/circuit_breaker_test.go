package circuit_breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/library-system/pkg/circuit_breaker"
)

func TestCircuitBreaker_Call(t *testing.T) {
	ok := func() error { return nil }
	fail := func() error { return errors.New("broker down") }

	cb := circuit_breaker.New(10, 100*time.Millisecond, 0.5, 2)

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Call(ok))
	}

	// trip it: 5 of the last 10 calls fail
	for i := 0; i < 5; i++ {
		require.Error(t, cb.Call(fail))
	}

	// open: calls are rejected without invoking fn
	err := cb.Call(ok)
	require.ErrorIs(t, err, circuit_breaker.ErrOpen)

	// after the cooldown a probe goes through and successes close it again
	time.Sleep(150 * time.Millisecond)
	cb.Reset()
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Call(ok))
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	ok := func() error { return nil }
	fail := func() error { return errors.New("broker down") }

	cb := circuit_breaker.New(4, 50*time.Millisecond, 0.5, 1)
	for i := 0; i < 4; i++ {
		_ = cb.Call(fail)
	}
	require.ErrorIs(t, cb.Call(ok), circuit_breaker.ErrOpen)

	time.Sleep(60 * time.Millisecond)

	// half-open probes succeed and the breaker closes
	require.NoError(t, cb.Call(ok))
	require.NoError(t, cb.Call(ok))
	require.NoError(t, cb.Call(ok))
}

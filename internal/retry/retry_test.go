package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fast(3), "page", func() (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("timeout"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("bad cursor")
	_, err := Do(context.Background(), fast(5), "page", func() (int, error) {
		calls++
		return 0, perm
	})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	cause := errors.New("connection reset")
	_, err := Do(context.Background(), fast(2), "page", func() (int, error) {
		calls++
		return 0, Transient(cause)
	})
	assert.Equal(t, cause, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 2, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := fast(0)
	cfg.InitialWait = time.Hour
	cfg.MaxWait = time.Hour

	_, err := Do(ctx, cfg, "page", func() (int, error) {
		return 0, Transient(errors.New("busy"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 100*time.Millisecond, c.Wait(1))
	assert.Equal(t, 200*time.Millisecond, c.Wait(2))
	assert.Equal(t, 400*time.Millisecond, c.Wait(3))
	assert.Equal(t, 10*time.Second, c.Wait(20))
}

func TestTransientNil(t *testing.T) {
	assert.NoError(t, Transient(nil))
	assert.True(t, IsTransient(Transient(errors.New("x"))))
}

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/poiesic/lorekeeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(retries uint64) Option {
	return WithBackoff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), retries)
	})
}

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistry_KeepDropsWhileRunning(t *testing.T) {
	r := newRegistry(t)
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	task := func(ctx context.Context) core.Outcome {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return core.OutcomeSuccess
	}

	require.True(t, r.Enqueue("embed", PolicyKeep, task))
	<-started
	assert.True(t, r.Active("embed"))
	assert.False(t, r.Enqueue("embed", PolicyKeep, task))

	close(release)
	r.Wait()
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, r.Active("embed"))

	assert.True(t, r.Enqueue("embed", PolicyKeep, task))
	r.Wait()
	assert.Equal(t, int32(2), runs.Load())
}

func TestRegistry_ReplaceCancelsAndWaits(t *testing.T) {
	r := newRegistry(t)
	started := make(chan struct{})
	var firstExited atomic.Bool
	var firstCancelled atomic.Bool
	var secondSawExit atomic.Bool

	first := func(ctx context.Context) core.Outcome {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		firstCancelled.Store(true)
		firstExited.Store(true)
		return core.OutcomeRetry
	}
	second := func(ctx context.Context) core.Outcome {
		secondSawExit.Store(firstExited.Load())
		return core.OutcomeSuccess
	}

	require.True(t, r.Enqueue("embed", PolicyReplace, first))
	<-started
	require.True(t, r.Enqueue("embed", PolicyReplace, second))
	r.Wait()

	assert.True(t, firstCancelled.Load())
	assert.True(t, secondSawExit.Load(), "replacement started before the old run returned")
}

func TestRegistry_RetryUntilSuccess(t *testing.T) {
	r := newRegistry(t, fastBackoff(10))
	var attempts atomic.Int32

	r.Enqueue("embed", PolicyKeep, func(ctx context.Context) core.Outcome {
		if attempts.Add(1) < 3 {
			return core.OutcomeRetry
		}
		return core.OutcomeSuccess
	})
	r.Wait()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestRegistry_RetryGivesUp(t *testing.T) {
	r := newRegistry(t, fastBackoff(2))
	var attempts atomic.Int32

	r.Enqueue("embed", PolicyKeep, func(ctx context.Context) core.Outcome {
		attempts.Add(1)
		return core.OutcomeRetry
	})
	r.Wait()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestRegistry_FailureIsNotRetried(t *testing.T) {
	r := newRegistry(t, fastBackoff(10))
	var attempts atomic.Int32

	r.Enqueue("embed", PolicyKeep, func(ctx context.Context) core.Outcome {
		attempts.Add(1)
		return core.OutcomeFailure
	})
	r.Wait()

	assert.Equal(t, int32(1), attempts.Load())
}

func TestRegistry_PanicIsFailure(t *testing.T) {
	r := newRegistry(t, fastBackoff(10))
	var attempts atomic.Int32

	r.Enqueue("embed", PolicyKeep, func(ctx context.Context) core.Outcome {
		attempts.Add(1)
		panic("boom")
	})
	r.Wait()

	assert.Equal(t, int32(1), attempts.Load())
	assert.False(t, r.Active("embed"))
}

func TestRegistry_NamesAreIndependent(t *testing.T) {
	r := newRegistry(t)
	release := make(chan struct{})
	task := func(ctx context.Context) core.Outcome {
		<-release
		return core.OutcomeSuccess
	}

	assert.True(t, r.Enqueue("a", PolicyKeep, task))
	assert.True(t, r.Enqueue("b", PolicyKeep, task))
	close(release)
	r.Wait()
}

func TestRegistry_Cancel(t *testing.T) {
	r := newRegistry(t)
	started := make(chan struct{})
	r.Enqueue("embed", PolicyKeep, func(ctx context.Context) core.Outcome {
		close(started)
		<-ctx.Done()
		return core.OutcomeSuccess
	})
	<-started
	r.Cancel("embed")
	r.Wait()
	assert.False(t, r.Active("embed"))
}

func TestRegistry_Every(t *testing.T) {
	r := newRegistry(t)
	var runs atomic.Int32

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := r.Every(ctx, "embed", 10*time.Millisecond, func(ctx context.Context) core.Outcome {
		runs.Add(1)
		return core.OutcomeSuccess
	})
	require.NoError(t, err)
	r.Wait()

	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestRegistry_EveryRejectsBadInterval(t *testing.T) {
	r := newRegistry(t)
	err := r.Every(context.Background(), "x", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRegistry_ClosedRejectsWork(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.False(t, r.Enqueue("embed", PolicyReplace, func(ctx context.Context) core.Outcome {
		return core.OutcomeSuccess
	}))
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "keep", PolicyKeep.String())
	assert.Equal(t, "replace", PolicyReplace.String())
	assert.Equal(t, "unknown", Policy(9).String())
}

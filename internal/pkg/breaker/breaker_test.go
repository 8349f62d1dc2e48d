package breaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

var errBackend = errors.New("backend unavailable")

func newTestBreaker(clock clockz.Clock) *CircuitBreaker {
	return New("create-payment", Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}, clock)
}

func failingCall(ctx context.Context) error { return errBackend }
func okCall(ctx context.Context) error      { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := b.Execute(ctx, failingCall)
		require.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, StateOpen, b.Snapshot().State)

	// 打开后调用被短路，底层操作不再被执行
	invoked := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	// 4 次失败 + 1 次成功，连续计数清零，熔断器保持关闭
	for i := 0; i < 4; i++ {
		_ = b.Execute(ctx, failingCall)
	}
	require.NoError(t, b.Execute(ctx, okCall))

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
}

func TestBreakerHalfOpenTrialClosesOnSuccess(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, failingCall)
	}
	require.Equal(t, StateOpen, b.Snapshot().State)

	// 恢复窗口未到期，依旧短路
	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, okCall), ErrOpen)

	// 到期后放行一次试探，成功则关闭并清零计数
	clock.Advance(1 * time.Second)
	require.NoError(t, b.Execute(ctx, okCall))

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
}

func TestBreakerHalfOpenTrialReopensOnFailure(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, failingCall)
	}
	clock.Advance(30 * time.Second)

	require.ErrorIs(t, b.Execute(ctx, failingCall), errBackend)
	assert.Equal(t, StateOpen, b.Snapshot().State)

	// 重新打开后计时被刷新，需再等一个完整的恢复窗口
	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, okCall), ErrOpen)
	clock.Advance(1 * time.Second)
	assert.NoError(t, b.Execute(ctx, okCall))
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, failingCall)
	}
	clock.Advance(30 * time.Second)

	// 第一个调用占据试探名额并阻塞在底层操作上
	trialStarted := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(ctx, func(ctx context.Context) error {
			close(trialStarted)
			<-release
			return nil
		})
	}()

	<-trialStarted
	// 试探在途期间，其余并发调用全部被短路
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, okCall), ErrOpen)
	}

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.Snapshot().State)
}

func TestBreakerCallTimeoutCountsAsFailure(t *testing.T) {
	b := New("get-status", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
		CallTimeout:      10 * time.Millisecond,
	}, clockz.RealClock)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.Snapshot().State)
}

func TestRegistryIndependentOperations(t *testing.T) {
	clock := clockz.NewFakeClock()
	reg := NewRegistry(Config{FailureThreshold: 5, RecoveryTimeout: time.Minute}, map[string]Config{
		"refund": {FailureThreshold: 1, RecoveryTimeout: time.Minute},
	}, clock)
	ctx := context.Background()

	require.Error(t, reg.Get("refund").Execute(ctx, failingCall))
	require.Error(t, reg.Get("create-payment").Execute(ctx, failingCall))

	// refund 阈值为 1，单次失败即打开；create-payment 不受影响
	assert.Equal(t, StateOpen, reg.Get("refund").Snapshot().State)
	assert.Equal(t, StateClosed, reg.Get("create-payment").Snapshot().State)

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "create-payment", snaps[0].Name)

	reg.Reset("refund")
	assert.Equal(t, StateClosed, reg.Get("refund").Snapshot().State)
}

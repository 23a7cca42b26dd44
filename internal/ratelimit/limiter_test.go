package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitAllowsUpToCapacityImmediately(t *testing.T) {
	mock := clock.NewMock()
	l := New(2, time.Second, mock)

	require.NoError(t, l.Admit(context.Background()))
	require.NoError(t, l.Admit(context.Background()))
}

func TestAdmitBlocksUntilWindowSlidesAndWakesWaiter(t *testing.T) {
	mock := clock.NewMock()
	l := New(1, time.Second, mock)

	require.NoError(t, l.Admit(context.Background()))

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Admit(context.Background())
		close(done)
	}()

	// Give the waiter goroutine time to register before advancing the clock
	// strictly past the window so evictLocked's Before(cutoff) check fires.
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second + time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Admit did not unblock after the window slid")
	}
	wg.Wait()
}

func TestAdmitAdmitsAllWaitersUnderThreeWayContention(t *testing.T) {
	l := New(1, 50*time.Millisecond, clock.New())
	require.NoError(t, l.Admit(context.Background()))

	const waiters = 3
	errCh := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() { errCh <- l.Admit(context.Background()) }()
	}

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("Admit livelocked under three-way contention instead of resolving once the window slid")
		}
	}
}

func TestAdmitRespectsCancellation(t *testing.T) {
	mock := clock.NewMock()
	l := New(1, time.Second, mock)
	require.NoError(t, l.Admit(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Admit(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Admit did not observe cancellation")
	}
}

package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/emailchange/core"
)

func TestLocalLockerSerializesPerPrincipal(t *testing.T) {
	l := core.NewLocalLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "u1")
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxInside)
}

func TestLocalLockerHonorsContext(t *testing.T) {
	l := core.NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "u1")
	require.NoError(t, err)

	// Other principals are not blocked.
	other, err := l.Lock(context.Background(), "u2")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "u1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "u1")
	require.NoError(t, err)
	again()
}

package bg_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/bg"
)

func TestNewPool_DefaultsToGOMAXPROCS(t *testing.T) {
	t.Parallel()
	assert.Positive(t, bg.NewPool(0).Size())
	assert.Equal(t, 3, bg.NewPool(3).Size())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const size = 2
	p := bg.NewPool(size)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Run(context.Background(), func() {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(size))
}

func TestPool_RespectsContext(t *testing.T) {
	t.Parallel()
	p := bg.NewPool(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Run(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, func() { t.Error("must not run") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestDo_ReturnsValue(t *testing.T) {
	t.Parallel()
	got, err := bg.Do(context.Background(), bg.NewPool(1), func() int { return 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

//go:build unix

package wakeup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmq/linkmq-go/pkg/poller"
)

func bells(t *testing.T) map[string]*Bell {
	t.Helper()
	def, err := New()
	require.NoError(t, err)
	pipe, err := NewPipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		def.Close()
		pipe.Close()
	})
	return map[string]*Bell{"default": def, "pipe": pipe}
}

func readyCount(t *testing.T, p poller.Poller, timeout time.Duration) int {
	t.Helper()
	events, err := p.Poll(timeout)
	require.NoError(t, err)
	return len(events)
}

func TestBellSignalWakesPoll(t *testing.T) {
	for name, b := range bells(t) {
		t.Run(name, func(t *testing.T) {
			p := poller.NewEmulated()
			defer p.Close()
			require.NoError(t, p.Register(b.FD(), poller.Readable))

			assert.Equal(t, 0, readyCount(t, p, 0))

			go func() {
				time.Sleep(20 * time.Millisecond)
				_ = b.Signal()
			}()

			start := time.Now()
			assert.Equal(t, 1, readyCount(t, p, 5*time.Second))
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestBellSignalsCoalesce(t *testing.T) {
	for name, b := range bells(t) {
		t.Run(name, func(t *testing.T) {
			p := poller.NewEmulated()
			defer p.Close()
			require.NoError(t, p.Register(b.FD(), poller.Readable))

			for i := 0; i < 1000; i++ {
				require.NoError(t, b.Signal())
			}
			assert.Equal(t, 1, readyCount(t, p, 0))

			require.NoError(t, b.Drain())
			assert.Equal(t, 0, readyCount(t, p, 0))
		})
	}
}

func TestBellConcurrentSignal(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = b.Signal()
			}
		}()
	}
	wg.Wait()
	require.NoError(t, b.Drain())
	require.NoError(t, b.Close())
}

func TestBellClose(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Signal(), ErrClosed)
	assert.ErrorIs(t, b.Drain(), ErrClosed)
}

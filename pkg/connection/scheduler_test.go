package connection

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedInterval(d time.Duration) func(string) time.Duration {
	return func(string) time.Duration { return d }
}

func TestSchedulerOrdersByDue(t *testing.T) {
	s := NewScheduler[string]()
	base := time.Unix(1000, 0)

	s.Schedule(base.Add(3*time.Second), "c")
	s.Schedule(base.Add(1*time.Second), "a")
	s.Schedule(base.Add(2*time.Second), "b")
	s.Schedule(base.Add(1*time.Second), "a2")

	var keys []string
	for _, p := range s.Plans() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"a", "a2", "b", "c"}, keys)

	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "a", next.Key)
}

func TestSchedulerDueNowPopsPrefix(t *testing.T) {
	s := NewScheduler[string]()
	base := time.Unix(1000, 0)
	s.Schedule(base, "a")
	s.Schedule(base.Add(time.Second), "b")
	s.Schedule(base.Add(5*time.Second), "c")

	due := s.DueNow(base.Add(time.Second), fixedInterval(3*time.Second))
	assert.Equal(t, []string{"a", "b"}, due)
	assert.Equal(t, 1, s.Len())

	assert.Nil(t, s.DueNow(base.Add(2*time.Second), fixedInterval(3*time.Second)))
}

func TestSchedulerZeroTimeIsImmediatelyDue(t *testing.T) {
	s := NewScheduler[string]()
	s.Schedule(time.Time{}, "a")
	assert.Equal(t, []string{"a"}, s.DueNow(time.Now(), fixedInterval(3*time.Second)))
}

func TestSchedulerClockSkewGuard(t *testing.T) {
	s := NewScheduler[string]()
	now := time.Unix(1000, 0)

	// Planned before the wall clock stepped back by an hour.
	s.Schedule(now.Add(time.Hour), "a")
	due := s.DueNow(now, fixedInterval(3*time.Second))
	assert.Equal(t, []string{"a"}, due)

	// Within two intervals the plan is honoured.
	s.Schedule(now.Add(5*time.Second), "b")
	assert.Nil(t, s.DueNow(now, fixedInterval(3*time.Second)))
	assert.Equal(t, 1, s.Len())
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler[string]()
	base := time.Unix(1000, 0)
	s.Schedule(base, "a")
	s.Schedule(base.Add(time.Second), "b")
	s.Schedule(base.Add(2*time.Second), "a")

	assert.Equal(t, 2, s.Cancel("a"))
	assert.Equal(t, 0, s.Cancel("a"))
	assert.Equal(t, []string{"b"}, s.DueNow(base.Add(time.Hour), fixedInterval(time.Hour)))
}

func TestSchedulerRandomOperationsStaySorted(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewScheduler[int]()
	base := time.Unix(1000, 0)
	live := make(map[int]bool)

	for i := 0; i < 5000; i++ {
		key := rng.Intn(50)
		switch rng.Intn(3) {
		case 0, 1:
			s.Schedule(base.Add(time.Duration(rng.Intn(10000))*time.Millisecond), key)
			live[key] = true
		case 2:
			s.Cancel(key)
			delete(live, key)
		}

		plans := s.Plans()
		require.True(t, slices.IsSortedFunc(plans, func(a, b Plan[int]) int {
			return a.Due.Compare(b.Due)
		}))
		for _, p := range plans {
			require.True(t, live[p.Key], "stale plan for %d", p.Key)
		}
	}
}

// A connector that keeps failing reschedules itself one interval after each
// attempt. A long stall of the loop must not turn into a burst of attempts.
func TestSchedulerBoundedAttemptsAfterStall(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))
	interval := 3 * time.Second

	s := NewScheduler[string]()
	s.Schedule(time.Time{}, "peer")

	attempts := 0
	pass := func() {
		for _, key := range s.DueNow(mock.Now(), fixedInterval(interval)) {
			attempts++
			s.Schedule(mock.Now().Add(interval), key)
		}
	}

	pass()
	require.Equal(t, 1, attempts)

	// Host suspended for ten minutes.
	mock.Add(10 * time.Minute)
	pass()
	pass()
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, s.Len())

	mock.Add(interval)
	pass()
	assert.Equal(t, 3, attempts)
}

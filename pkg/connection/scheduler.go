package connection

import (
	"slices"
	"sort"
	"time"
)

// Plan is a single planned connection attempt.
type Plan[K comparable] struct {
	Due time.Time
	Key K
}

// Scheduler keeps planned connection attempts sorted by due time.
type Scheduler[K comparable] struct {
	plans []Plan[K]
}

// NewScheduler creates an empty scheduler.
func NewScheduler[K comparable]() *Scheduler[K] {
	return &Scheduler[K]{}
}

// Schedule plans an attempt for key at due. Entries with equal due times
// keep insertion order.
func (s *Scheduler[K]) Schedule(due time.Time, key K) {
	i := sort.Search(len(s.plans), func(i int) bool {
		return s.plans[i].Due.After(due)
	})
	s.plans = slices.Insert(s.plans, i, Plan[K]{Due: due, Key: key})
}

// Cancel removes every plan for key and returns how many were removed.
func (s *Scheduler[K]) Cancel(key K) int {
	before := len(s.plans)
	s.plans = slices.DeleteFunc(s.plans, func(p Plan[K]) bool {
		return p.Key == key
	})
	return before - len(s.plans)
}

// DueNow removes and returns the keys whose attempts are due at now, in due
// order. interval returns the reconnect interval of a key; a plan more than
// two intervals in the future is due as well.
func (s *Scheduler[K]) DueNow(now time.Time, interval func(K) time.Duration) []K {
	n := 0
	for _, p := range s.plans {
		if p.Due.After(now) && !p.Due.After(now.Add(2*interval(p.Key))) {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]K, n)
	for i := range n {
		due[i] = s.plans[i].Key
	}
	s.plans = slices.Delete(s.plans, 0, n)
	return due
}

// Next returns the earliest plan.
func (s *Scheduler[K]) Next() (Plan[K], bool) {
	if len(s.plans) == 0 {
		return Plan[K]{}, false
	}
	return s.plans[0], true
}

// Plans returns a copy of the planned attempts in due order.
func (s *Scheduler[K]) Plans() []Plan[K] {
	return slices.Clone(s.plans)
}

// Len returns the number of planned attempts.
func (s *Scheduler[K]) Len() int {
	return len(s.plans)
}

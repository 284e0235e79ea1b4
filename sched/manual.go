package sched

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler and Clock for tests. Time only moves
// when Advance is called; due callbacks run on the advancing goroutine in
// due-time order (insertion order for equal times).
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	tasks  []*manualTask
	delays []time.Duration
}

type manualTask struct {
	m        *Manual
	due      time.Time
	seq      int
	fn       func()
	canceled bool
	fired    bool
}

func (t *manualTask) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.canceled || t.fired {
		return false
	}
	t.canceled = true
	return true
}

// NewManual returns a Manual positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, due: m.now.Add(d), seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	m.delays = append(m.delays, d)
	return t
}

// Delays returns the delay passed to each Schedule call, in order.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.delays))
	copy(out, m.delays)
	return out
}

// Pending reports the number of scheduled, uncanceled callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and runs every callback that becomes
// due, including callbacks scheduled by earlier callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue()
		if t == nil {
			return
		}
		t.fn()
	}
}

func (m *Manual) popDue() *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due.Equal(m.tasks[j].due) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].due.Before(m.tasks[j].due)
	})
	for i, t := range m.tasks {
		if t.canceled {
			continue
		}
		if t.due.After(m.now) {
			break
		}
		t.fired = true
		m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
		return t
	}
	// Drop canceled tasks that are already due.
	kept := m.tasks[:0]
	for _, t := range m.tasks {
		if t.canceled && !t.due.After(m.now) {
			continue
		}
		kept = append(kept, t)
	}
	m.tasks = kept
	return nil
}

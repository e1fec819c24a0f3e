package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by explicit calls to Advance. Callbacks run on
// the goroutine calling Advance, in due-time order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	entries []*manualEntry
}

type manualEntry struct {
	at    time.Time
	seq   uint64
	timer *Timer
	fn    func()
}

// NewManual returns a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the scheduler's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules fn to run once the clock has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Timer{}
	e := &manualEntry{at: m.now.Add(d), seq: m.seq, timer: t, fn: fn}
	m.seq++
	m.entries = append(m.entries, e)
	t.cancel = func() { m.remove(e) }
	return t
}

// Advance moves the clock forward by d, running every callback that becomes
// due, including callbacks scheduled by earlier callbacks within the window.
// It returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		next := m.popDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return fired
		}
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()

		if !next.timer.Stopped() {
			next.timer.fire(next.fn)
			fired++
		}
	}
}

// Pending returns the number of scheduled, not yet run callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manual) popDue(target time.Time) *manualEntry {
	idx := -1
	for i, e := range m.entries {
		if e.at.After(target) {
			continue
		}
		if idx < 0 || e.at.Before(m.entries[idx].at) || (e.at.Equal(m.entries[idx].at) && e.seq < m.entries[idx].seq) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	e := m.entries[idx]
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	return e
}

func (m *Manual) remove(target *manualEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e == target {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// Package clock abstracts time scheduling so stub delivery can run against
// the wall clock in production and an externally-advanced clock in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was prevented
	// from running.
	Stop() bool
}

// Clock schedules callbacks against some notion of time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real delegates to the runtime wall clock.
type Real struct{}

// NewReal returns the wall-clock implementation.
func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct{ t *time.Timer }

func (rt realTimer) Stop() bool { return rt.t.Stop() }

// Virtual is a deterministic clock. Scheduled callbacks never fire
// spontaneously; they run only when Advance moves the clock past their
// deadline, in deadline order.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*virtualTimer
}

type virtualTimer struct {
	clock    *Virtual
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

// NewVirtual returns a virtual clock anchored at an arbitrary fixed instant.
func NewVirtual() *Virtual {
	return &Virtual{now: time.Unix(0, 0)}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := &virtualTimer{clock: v, deadline: v.now.Add(d), seq: v.seq, fn: fn}
	v.seq++
	v.timers = append(v.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every due callback. The
// callbacks run synchronously on the caller's goroutine, outside the clock
// lock.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	v.now = v.now.Add(d)
	var due []*virtualTimer
	remaining := v.timers[:0]
	for _, t := range v.timers {
		if !t.stopped && !t.deadline.After(v.now) {
			t.fired = true
			due = append(due, t)
			continue
		}
		remaining = append(remaining, t)
	}
	v.timers = remaining
	v.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

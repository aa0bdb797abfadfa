// Package inflight shares one underlying execution between concurrent
// requests with identical fingerprints.
package inflight

import (
	"sync"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Waiter receives the fan-out of a shared execution. Every waiter of one
// entry observes the identical terminal Response pointer.
type Waiter struct {
	ID         string
	OnProgress func(core.ProgressEvent)
	OnComplete func(*core.Response, error)
}

// Factory starts one underlying execution. It must report progress zero or
// more times and exactly one terminal through the callbacks, and return a
// cooperative cancel for the execution.
type Factory func(onProgress func(core.ProgressEvent), onComplete func(*core.Response, error)) (cancel func())

// Tracker is the keyed in-flight registry. An entry exists for a fingerprint
// if and only if an execution for it is currently in progress.
type Tracker struct {
	mu      sync.Mutex
	entries map[core.Fingerprint]*entry
}

type entry struct {
	order   []string
	waiters map[string]Waiter
	cancel  func()
	done    bool
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[core.Fingerprint]*entry)}
}

// Size returns the number of executions currently in progress.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Acquire registers w under fp. The first waiter for a fingerprint invokes
// start; concurrent waiters attach to the in-progress execution without
// triggering a new one. The returned detach removes w and, when it was the
// last waiter of a still-running execution, cancels the execution.
func (t *Tracker) Acquire(fp core.Fingerprint, w Waiter, start Factory) (detach func()) {
	t.mu.Lock()
	if e, ok := t.entries[fp]; ok {
		e.order = append(e.order, w.ID)
		e.waiters[w.ID] = w
		t.mu.Unlock()
		return func() { t.detach(fp, w.ID) }
	}

	e := &entry{
		order:   []string{w.ID},
		waiters: map[string]Waiter{w.ID: w},
	}
	t.entries[fp] = e
	t.mu.Unlock()

	// The factory may complete synchronously (immediate stubs), so the entry
	// must already be registered when these callbacks run.
	cancel := start(
		func(p core.ProgressEvent) { t.progress(fp, p) },
		func(resp *core.Response, err error) { t.complete(fp, resp, err) },
	)

	t.mu.Lock()
	if current, ok := t.entries[fp]; ok && current == e {
		e.cancel = cancel
	} else if cancel != nil {
		// Entry already terminated or all waiters detached during start.
		// Cancelling a completed execution is a no-op by contract; detachment
		// during start must still stop the execution.
		defer cancel()
	}
	t.mu.Unlock()

	return func() { t.detach(fp, w.ID) }
}

func (t *Tracker) progress(fp core.Fingerprint, p core.ProgressEvent) {
	for _, w := range t.snapshot(fp) {
		w.OnProgress(p)
	}
}

// complete removes the entry atomically with delivering the terminal: by the
// time any waiter observes the result, a re-request with the same
// fingerprint starts a fresh execution.
func (t *Tracker) complete(fp core.Fingerprint, resp *core.Response, err error) {
	t.mu.Lock()
	e, ok := t.entries[fp]
	if !ok || e.done {
		t.mu.Unlock()
		return
	}
	e.done = true
	delete(t.entries, fp)
	waiters := e.ordered()
	t.mu.Unlock()

	for _, w := range waiters {
		w.OnComplete(resp, err)
	}
}

func (t *Tracker) detach(fp core.Fingerprint, id string) {
	t.mu.Lock()
	e, ok := t.entries[fp]
	if !ok || e.done {
		t.mu.Unlock()
		return
	}
	if _, present := e.waiters[id]; !present {
		t.mu.Unlock()
		return
	}
	delete(e.waiters, id)
	if len(e.waiters) > 0 {
		t.mu.Unlock()
		return
	}
	// Last waiter gone: tear down the shared execution.
	e.done = true
	delete(t.entries, fp)
	cancel := e.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (t *Tracker) snapshot(fp core.Fingerprint) []Waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fp]
	if !ok || e.done {
		return nil
	}
	return e.ordered()
}

func (e *entry) ordered() []Waiter {
	out := make([]Waiter, 0, len(e.waiters))
	for _, id := range e.order {
		if w, ok := e.waiters[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

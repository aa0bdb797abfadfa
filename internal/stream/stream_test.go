package stream

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

func collect(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out draining subscription, got %d events", len(events))
		}
	}
}

func TestProducerIsCold(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	producer := NewProducer(func(emit func(Event)) func() {
		started.Add(1)
		emit(Event{Response: &core.Response{StatusCode: 200}, Terminal: TerminalCompleted})
		return func() {}
	})

	if started.Load() != 0 {
		t.Fatalf("expected no work before subscribe")
	}

	sub := producer.Subscribe()
	collect(t, sub)
	if started.Load() != 1 {
		t.Fatalf("expected one start after subscribe, got %d", started.Load())
	}

	// Each subscription is an independent logical request.
	collect(t, producer.Subscribe())
	if started.Load() != 2 {
		t.Fatalf("expected a fresh start per subscription, got %d", started.Load())
	}
}

func TestEventsOrderedWithSingleTerminal(t *testing.T) {
	t.Parallel()

	producer := NewProducer(func(emit func(Event)) func() {
		for i := int64(1); i <= 4; i++ {
			emit(Event{Progress: &core.ProgressEvent{BytesTransferred: i * 1000, BytesExpected: 4000}})
		}
		resp := &core.Response{StatusCode: 200, Body: make([]byte, 4000)}
		emit(Event{Progress: &core.ProgressEvent{BytesTransferred: 4000, BytesExpected: 4000, Response: resp}, Response: resp, Terminal: TerminalCompleted})
		// Anything after the terminal must be dropped.
		emit(Event{Progress: &core.ProgressEvent{BytesTransferred: 9000, BytesExpected: 4000}})
		emit(Event{Err: nil, Terminal: TerminalFailed})
		return func() {}
	})

	events := collect(t, producer.Subscribe())
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events[:4] {
		if ev.Terminal != "" {
			t.Fatalf("event %d should not be terminal", i)
		}
		if expected := int64(i+1) * 1000; ev.Progress.BytesTransferred != expected {
			t.Fatalf("expected %d bytes at event %d, got %d", expected, i, ev.Progress.BytesTransferred)
		}
	}
	last := events[4]
	if last.Terminal != TerminalCompleted {
		t.Fatalf("expected completed terminal, got %q", last.Terminal)
	}
	if last.Response == nil || last.Progress == nil || last.Progress.Response != last.Response {
		t.Fatalf("expected terminal to carry the response")
	}
}

func TestCancelPropagatesOnceAndSuppressesEvents(t *testing.T) {
	t.Parallel()

	var cancels atomic.Int32
	var emitFn func(Event)
	var mu sync.Mutex

	producer := NewProducer(func(emit func(Event)) func() {
		mu.Lock()
		emitFn = emit
		mu.Unlock()
		return func() { cancels.Add(1) }
	})

	sub := producer.Subscribe()
	sub.Cancel()
	sub.Cancel()

	if cancels.Load() != 1 {
		t.Fatalf("expected exactly one underlying cancel, got %d", cancels.Load())
	}

	// Late emissions from the execution never reach the subscriber.
	mu.Lock()
	emit := emitFn
	mu.Unlock()
	emit(Event{Progress: &core.ProgressEvent{BytesTransferred: 1}})
	emit(Event{Response: &core.Response{StatusCode: 200}, Terminal: TerminalCompleted})

	events := collect(t, sub)
	if len(events) != 1 {
		t.Fatalf("expected only the interrupted terminal, got %d events", len(events))
	}
	if events[0].Terminal != TerminalInterrupted {
		t.Fatalf("expected interrupted terminal, got %q", events[0].Terminal)
	}
}

func TestCancelSuppressesAlreadyEmittedProgress(t *testing.T) {
	t.Parallel()

	producer := NewProducer(func(emit func(Event)) func() {
		for i := int64(1); i <= 10; i++ {
			emit(Event{Progress: &core.ProgressEvent{BytesTransferred: i, BytesExpected: 10}})
		}
		return func() {}
	})

	// Nothing is consumed before the cancel, so every emitted event is still
	// pending delivery.
	sub := producer.Subscribe()
	sub.Cancel()

	events := collect(t, sub)
	if len(events) != 1 {
		t.Fatalf("expected only the interrupted terminal, got %d events", len(events))
	}
	if events[0].Terminal != TerminalInterrupted {
		t.Fatalf("expected interrupted terminal, got %+v", events[0])
	}
}

func TestCancelAfterTerminalIsNoop(t *testing.T) {
	t.Parallel()

	var cancels atomic.Int32
	producer := NewProducer(func(emit func(Event)) func() {
		emit(Event{Response: &core.Response{StatusCode: 200}, Terminal: TerminalCompleted})
		return func() { cancels.Add(1) }
	})

	sub := producer.Subscribe()
	events := collect(t, sub)
	if len(events) != 1 || events[0].Terminal != TerminalCompleted {
		t.Fatalf("expected one completed terminal")
	}

	sub.Cancel()
	if cancels.Load() != 0 {
		t.Fatalf("expected cancel after completion to be a no-op, got %d", cancels.Load())
	}
}

func TestFailureTerminal(t *testing.T) {
	t.Parallel()

	failure := core.NewError(core.ErrClassTransport, "execute", nil)
	producer := NewProducer(func(emit func(Event)) func() {
		emit(Event{Err: failure, Terminal: TerminalFailed})
		return func() {}
	})

	events := collect(t, producer.Subscribe())
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Terminal != TerminalFailed || events[0].Err != failure {
		t.Fatalf("expected the failure terminal, got %+v", events[0])
	}
}

func TestSubscriptionIDsAreUnique(t *testing.T) {
	t.Parallel()

	producer := NewProducer(func(emit func(Event)) func() {
		emit(Event{Terminal: TerminalCompleted})
		return func() {}
	})
	a := producer.Subscribe()
	b := producer.Subscribe()
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct subscription ids")
	}
	collect(t, a)
	collect(t, b)
}

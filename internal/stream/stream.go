// Package stream adapts callback-based executions into cold, cancellable
// event streams with exactly one terminal event per subscription.
package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// TerminalClass distinguishes how a subscription ended. Interrupted is a
// separate terminal state from both completion and failure.
type TerminalClass string

const (
	TerminalCompleted   TerminalClass = "completed"
	TerminalFailed      TerminalClass = "failed"
	TerminalInterrupted TerminalClass = "interrupted"
)

// Event is one emission from a subscription. Non-terminal events carry only
// Progress; the terminal event carries Terminal plus Response or Err.
type Event struct {
	Progress *core.ProgressEvent
	Response *core.Response
	Err      error
	Terminal TerminalClass
}

// StartFunc wires one subscriber into an underlying execution and returns a
// cooperative cancel. It is invoked once per subscription, on Subscribe.
type StartFunc func(emit func(Event)) (cancel func())

// Producer is a cold stream: nothing runs until Subscribe, and every
// Subscribe starts an independent logical request.
type Producer struct {
	start StartFunc
}

// NewProducer wraps start into a cold producer.
func NewProducer(start StartFunc) *Producer {
	return &Producer{start: start}
}

// Subscribe starts the underlying execution and returns its event stream.
func (p *Producer) Subscribe() *Subscription {
	// The events channel is unbuffered: an event is handed to the subscriber
	// only when it actively receives, so cancellation can still suppress
	// everything not yet consumed.
	s := &Subscription{
		id:     uuid.NewString(),
		events: make(chan Event),
		stop:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()

	cancel := p.start(s.emit)

	s.mu.Lock()
	s.cancelFn = cancel
	interrupted := s.cancelled
	s.mu.Unlock()
	// Cancel raced ahead of the start wiring; propagate now.
	if interrupted && cancel != nil {
		cancel()
	}
	return s
}

// Subscription is one consumer's view of an execution. Events() yields
// ordered events ending in exactly one terminal, after which the channel is
// closed. Consumers must drain the channel or call Cancel.
type Subscription struct {
	id        string
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	closed    bool
	cancelled bool
	cancelFn  func()
	events    chan Event
	stop      chan struct{}
}

// ID identifies the subscription.
func (s *Subscription) ID() string { return s.id }

// Events returns the ordered event stream.
func (s *Subscription) Events() <-chan Event { return s.events }

// Cancel stops event delivery to this subscriber and synchronously
// propagates cancellation to the underlying execution handle. The stream
// ends with an interrupted terminal. Cancelling after a terminal event is a
// no-op.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.closed || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.closed = true
	// Drop pending events: nothing queued before the cancel reaches the
	// subscriber afterwards. Closing stop also aborts an in-flight handoff.
	s.queue = append(s.queue[:0], Event{Terminal: TerminalInterrupted})
	cancel := s.cancelFn
	close(s.stop)
	s.cond.Signal()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// emit enqueues an event unless the subscription already terminated.
func (s *Subscription) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.Terminal != "" {
		s.closed = true
	}
	s.queue = append(s.queue, ev)
	s.cond.Signal()
}

// pump is the single writer of the events channel. It exits after the
// terminal event. Non-terminal events are dropped once the subscription is
// cancelled, even when the handoff is already in flight.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.cond.Wait()
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		cancelled := s.cancelled
		s.mu.Unlock()

		if ev.Terminal != "" {
			s.events <- ev
			close(s.events)
			return
		}
		if cancelled {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.stop:
		}
	}
}

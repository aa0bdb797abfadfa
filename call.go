package tern

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternhq/tern/internal/stream"
	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Call is one cold logical request. The underlying execution starts on the
// first Events or Response call; cancelling an unstarted call never touches
// the network. Re-requesting the provider creates an independent call.
type Call struct {
	producer *stream.Producer

	mu        sync.Mutex
	sub       *stream.Subscription
	cancelled bool
	pre       chan Event
}

// Events starts the call if needed and returns its ordered event stream.
// The channel delivers exactly one terminal event and is then closed.
// Consumers must drain the channel or call Cancel.
func (c *Call) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return c.sub.Events()
	}
	if c.cancelled {
		if c.pre == nil {
			c.pre = make(chan Event, 1)
			c.pre <- Event{Terminal: TerminalInterrupted}
			close(c.pre)
		}
		return c.pre
	}
	c.sub = c.producer.Subscribe()
	return c.sub.Events()
}

// Cancel stops the call. For a started call this synchronously propagates to
// the underlying execution handle; for an unstarted call it only marks the
// stream interrupted. Cancelling after the terminal event is a no-op.
func (c *Call) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// Response starts the call and blocks until its terminal event, discarding
// progress. Context cancellation cancels the call.
func (c *Call) Response(ctx context.Context) (*Response, error) {
	events := c.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("call stream closed without terminal event")
			}
			switch ev.Terminal {
			case TerminalCompleted:
				return ev.Response, nil
			case TerminalFailed:
				return nil, ev.Err
			case TerminalInterrupted:
				return nil, core.NewError(core.ErrClassCancelled, "call", context.Canceled)
			}
		case <-ctx.Done():
			c.Cancel()
			return nil, ctx.Err()
		}
	}
}

// Package executor performs one underlying execution per request: either a
// scheduled stub delivery or a live exchange through the transport
// collaborator.
package executor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ternhq/tern/internal/stub"
	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Transport is the black-box HTTP capability the executor delegates live
// requests to. Send reports transfer progress through onProgress and returns
// the terminal response or error. Cancellation arrives through ctx.
type Transport interface {
	Send(ctx context.Context, ep core.Endpoint, onProgress func(core.ProgressEvent)) (*core.Response, error)
}

// Executor routes executions to the stub policy or the transport.
type Executor struct {
	transport Transport
	policy    *stub.Policy
	log       zerolog.Logger
}

// New builds an executor. A nil transport is allowed only when every request
// is stubbed.
func New(transport Transport, policy *stub.Policy, log zerolog.Logger) *Executor {
	return &Executor{transport: transport, policy: policy, log: log}
}

// Execute starts one execution for ep. onProgress fires zero or more times
// with non-decreasing byte counts, strictly before the single onComplete.
// After the returned cancel runs, neither callback reaches the caller;
// cancelling after completion is a no-op.
func (e *Executor) Execute(ctx context.Context, behavior core.StubBehavior, ep core.Endpoint, sample []byte, onProgress func(core.ProgressEvent), onComplete func(*core.Response, error)) (cancel func()) {
	var done atomic.Bool

	if stub.ShouldStub(behavior) {
		e.log.Debug().Str("method", ep.Method).Str("url", ep.URL).Str("mode", string(behavior.Mode)).Msg("serving stubbed response")
		stop := e.policy.Schedule(behavior, ep, sample, func(resp *core.Response, err error) {
			if done.Swap(true) {
				return
			}
			onComplete(resp, err)
		})
		return func() {
			if done.Swap(true) {
				return
			}
			stop()
		}
	}

	if e.transport == nil {
		if !done.Swap(true) {
			onComplete(nil, core.NewError(core.ErrClassTransport, "execute", errors.New("no transport configured")))
		}
		return func() {}
	}

	runCtx, stop := context.WithCancel(ctx)
	go func() {
		defer stop()
		resp, err := e.transport.Send(runCtx, ep, func(p core.ProgressEvent) {
			if !done.Load() {
				onProgress(p)
			}
		})
		if done.Swap(true) {
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				onComplete(nil, core.NewError(core.ErrClassCancelled, "execute", err))
				return
			}
			e.log.Debug().Str("url", ep.URL).Err(err).Msg("transport failure")
			onComplete(nil, core.NewError(core.ErrClassTransport, "execute", err))
			return
		}
		onComplete(resp, nil)
	}()

	return func() {
		if done.Swap(true) {
			return
		}
		stop()
	}
}

package tern

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ternhq/tern/internal/executor"
	"github.com/ternhq/tern/internal/inflight"
	"github.com/ternhq/tern/internal/resolver"
	"github.com/ternhq/tern/internal/stream"
	"github.com/ternhq/tern/internal/stub"
	"github.com/ternhq/tern/pkg/contracts/v1/core"
	"github.com/ternhq/tern/transports/httpclient"
)

// Transport is the black-box HTTP capability live requests are delegated
// to. Implementations stream cumulative download progress through onProgress
// and return the terminal response or error; cancellation arrives through
// ctx. transports/httpclient provides the production implementation.
type Transport interface {
	Send(ctx context.Context, ep core.Endpoint, onProgress func(core.ProgressEvent)) (*core.Response, error)
}

// Provider turns targets into cancellable request streams.
type Provider struct {
	cfg     config
	exec    *executor.Executor
	tracker *inflight.Tracker
	log     zerolog.Logger
}

// New builds a provider. Defaults: live transport over net/http, no
// stubbing, in-flight tracking enabled, disabled logger.
func New(opts ...Option) (*Provider, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.behavior.Validate(); err != nil {
		return nil, err
	}
	if cfg.transport == nil {
		cfg.transport = httpclient.New(httpclient.Config{})
	}

	policy := stub.NewPolicy(cfg.manifest, cfg.clk)
	return &Provider{
		cfg:     cfg,
		exec:    executor.New(cfg.transport, policy, cfg.log),
		tracker: inflight.New(),
		log:     cfg.log,
	}, nil
}

// Request returns a cold single-result call for target: no resolution, stub,
// or network activity happens until the call is consumed. The stream yields
// exactly one terminal event.
func (p *Provider) Request(ctx context.Context, target Target, opts ...CallOption) *Call {
	return p.newCall(ctx, target, false, opts)
}

// RequestWithProgress returns a cold call whose stream yields ordered
// progress events followed by exactly one terminal event; the completed
// terminal carries a response-bearing progress event.
func (p *Provider) RequestWithProgress(ctx context.Context, target Target, opts ...CallOption) *Call {
	return p.newCall(ctx, target, true, opts)
}

// InflightCount reports how many shared executions are currently in
// progress.
func (p *Provider) InflightCount() int { return p.tracker.Size() }

func (p *Provider) newCall(ctx context.Context, target Target, withProgress bool, opts []CallOption) *Call {
	behavior := p.cfg.behavior
	for _, opt := range opts {
		opt(&behavior)
	}

	start := func(emit func(stream.Event)) func() {
		ep, err := resolver.Resolve(target)
		if err != nil {
			// Malformed targets fail before any progress and never reach the
			// transport.
			emit(stream.Event{Err: err, Terminal: stream.TerminalFailed})
			return func() {}
		}
		for _, plugin := range p.cfg.plugins {
			ep = plugin.PrepareEndpoint(ep)
		}

		var once sync.Once
		finished := make(chan struct{})
		finish := func() { once.Do(func() { close(finished) }) }

		onProgress := func(pe core.ProgressEvent) {
			if withProgress {
				emit(stream.Event{Progress: &pe})
			}
		}
		onComplete := func(resp *core.Response, err error) {
			for _, plugin := range p.cfg.plugins {
				plugin.DidComplete(ep, resp, err)
			}
			emit(terminalEvent(resp, err, withProgress))
			finish()
		}
		// The execution runs detached from this waiter's context: a shared
		// execution must outlive any single waiter, and is torn down only by
		// the last detach.
		execCtx := context.WithoutCancel(ctx)
		factory := func(op func(core.ProgressEvent), oc func(*core.Response, error)) func() {
			return p.exec.Execute(execCtx, behavior, ep, target.SampleData(), op, oc)
		}

		var stop func()
		if p.cfg.trackInflights {
			waiter := inflight.Waiter{ID: uuid.NewString(), OnProgress: onProgress, OnComplete: onComplete}
			stop = p.tracker.Acquire(ep.Fingerprint(), waiter, factory)
		} else {
			stop = factory(onProgress, onComplete)
		}

		if ctx.Done() == nil {
			return stop
		}
		// Context cancellation detaches this waiter only, mirroring Cancel.
		go func() {
			select {
			case <-ctx.Done():
				emit(stream.Event{Terminal: stream.TerminalInterrupted})
				stop()
			case <-finished:
			}
		}()
		return func() {
			finish()
			stop()
		}
	}

	return &Call{producer: stream.NewProducer(start)}
}

func terminalEvent(resp *core.Response, err error, withProgress bool) stream.Event {
	if err != nil {
		if core.ClassOf(err) == core.ErrClassCancelled {
			return stream.Event{Terminal: stream.TerminalInterrupted}
		}
		return stream.Event{Err: err, Terminal: stream.TerminalFailed}
	}
	ev := stream.Event{Response: resp, Terminal: stream.TerminalCompleted}
	if withProgress {
		total := int64(len(resp.Body))
		ev.Progress = &core.ProgressEvent{BytesTransferred: total, BytesExpected: total, Response: resp}
	}
	return ev
}

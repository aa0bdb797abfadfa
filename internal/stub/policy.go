// Package stub decides whether a request bypasses the network and how the
// canned response is scheduled for delivery.
package stub

import (
	"net/http"
	"time"

	"github.com/ternhq/tern/internal/clock"
	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Policy synthesizes stubbed responses. Delivery scheduling runs against the
// injected clock, so scheduled mode is fully deterministic under a virtual
// clock.
type Policy struct {
	manifest *Manifest
	clk      clock.Clock
}

// NewPolicy builds a policy over an optional manifest. A nil clock defaults
// to the wall clock.
func NewPolicy(manifest *Manifest, clk clock.Clock) *Policy {
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Policy{manifest: manifest, clk: clk}
}

// ShouldStub reports whether behavior routes the request to the stub branch.
func ShouldStub(b core.StubBehavior) bool {
	return b.Mode != "" && b.Mode != core.StubNever
}

// Schedule arranges delivery of the stubbed terminal for ep under behavior b.
// deliver runs exactly once unless the returned cancel stops it first.
// Misconfiguration (no sample and no matching manifest rule) is surfaced
// immediately, regardless of the scheduling mode.
func (p *Policy) Schedule(b core.StubBehavior, ep core.Endpoint, sample []byte, deliver func(*core.Response, error)) func() {
	resp, delay, err := p.render(b, ep, sample)
	if err != nil {
		deliver(nil, core.NewError(core.ErrClassStubUnavailable, "stub", err))
		return func() {}
	}

	if b.Mode == core.StubImmediate {
		deliver(resp, nil)
		return func() {}
	}

	timer := p.clk.AfterFunc(delay, func() { deliver(resp, nil) })
	return func() { timer.Stop() }
}

func (p *Policy) render(b core.StubBehavior, ep core.Endpoint, sample []byte) (*core.Response, time.Duration, error) {
	delay := b.Delay

	if p.manifest != nil {
		if rule := p.manifest.Match(ep); rule != nil {
			resp, err := rule.Render(sample)
			if err != nil {
				return nil, 0, err
			}
			if d := rule.Respond.Delay(); d > 0 {
				delay = d
			}
			return resp, delay, nil
		}
	}

	if len(sample) == 0 {
		return nil, 0, core.ErrStubUnavailable
	}
	return &core.Response{StatusCode: http.StatusOK, Body: sample}, delay, nil
}

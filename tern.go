// Package tern is a reactive HTTP networking provider: it resolves abstract
// targets into requests, serves them live or from configurable stubs,
// de-duplicates concurrent identical requests, and streams progress plus a
// single terminal result through cold, cancellable subscriptions.
package tern

import (
	"github.com/ternhq/tern/internal/clock"
	"github.com/ternhq/tern/internal/stream"
	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Contract types, re-exported for callers.
type (
	Target        = core.Target
	StaticTarget  = core.StaticTarget
	Endpoint      = core.Endpoint
	Response      = core.Response
	ProgressEvent = core.ProgressEvent
	Fingerprint   = core.Fingerprint
	StubMode      = core.StubMode
	StubBehavior  = core.StubBehavior
	ErrorClass    = core.ErrorClass
	ProviderError = core.ProviderError
)

// Stub scheduling modes.
const (
	StubNever     = core.StubNever
	StubImmediate = core.StubImmediate
	StubDelayed   = core.StubDelayed
	StubScheduled = core.StubScheduled
)

// Failure taxonomy classes.
const (
	ErrClassResolution      = core.ErrClassResolution
	ErrClassStubUnavailable = core.ErrClassStubUnavailable
	ErrClassTransport       = core.ErrClassTransport
	ErrClassCancelled       = core.ErrClassCancelled
)

// ErrStubUnavailable is returned when a stubbed target declares no sample.
var ErrStubUnavailable = core.ErrStubUnavailable

// ClassOf extracts the taxonomy class from an error returned by a call.
func ClassOf(err error) ErrorClass { return core.ClassOf(err) }

// Stream event surface.
type (
	Event         = stream.Event
	TerminalClass = stream.TerminalClass
)

// Terminal classes of a call stream.
const (
	TerminalCompleted   = stream.TerminalCompleted
	TerminalFailed      = stream.TerminalFailed
	TerminalInterrupted = stream.TerminalInterrupted
)

// Clock abstractions for deterministic stub scheduling.
type (
	Clock        = clock.Clock
	VirtualClock = clock.Virtual
)

// NewVirtualClock returns an externally-advanced clock for scheduled stubs:
// nothing fires until Advance is called.
func NewVirtualClock() *VirtualClock { return clock.NewVirtual() }

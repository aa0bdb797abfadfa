package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Target describes one logical HTTP call before resolution. Implementations
// must be immutable: repeated accessor calls return equal values, which the
// resolver relies on for deterministic endpoints and fingerprints.
type Target interface {
	// BaseURL returns the scheme://host[:port][/prefix] root of the service.
	BaseURL() string
	// Path returns the endpoint path appended to the base URL.
	Path() string
	// Method returns the HTTP method; empty defaults to GET.
	Method() string
	// Headers returns additional request headers, may be nil.
	Headers() map[string]string
	// Query returns query parameters merged into the resolved URL, may be nil.
	Query() map[string]string
	// Body returns the request body, may be nil.
	Body() []byte
	// SampleData returns the canned payload served by stub policies. A nil
	// return means the target declares no sample and cannot be stubbed.
	SampleData() []byte
}

// StaticTarget is a plain value implementation of Target.
type StaticTarget struct {
	URLBase     string
	URLPath     string
	HTTPMethod  string
	HeaderMap   map[string]string
	QueryMap    map[string]string
	RequestBody []byte
	Sample      []byte
}

func (t StaticTarget) BaseURL() string            { return t.URLBase }
func (t StaticTarget) Path() string               { return t.URLPath }
func (t StaticTarget) Method() string             { return t.HTTPMethod }
func (t StaticTarget) Headers() map[string]string { return t.HeaderMap }
func (t StaticTarget) Query() map[string]string   { return t.QueryMap }
func (t StaticTarget) Body() []byte               { return t.RequestBody }
func (t StaticTarget) SampleData() []byte         { return t.Sample }

// Endpoint is the fully-formed request specification derived from a Target.
type Endpoint struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Validate enforces the invariants a resolved endpoint must carry.
func (e Endpoint) Validate() error {
	if e.Method == "" {
		return fmt.Errorf("method is required")
	}
	if e.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// Fingerprint identifies logically-identical requests for in-flight sharing.
type Fingerprint string

// Fingerprint derives the in-flight sharing key from the resolved request.
// Two targets resolving to the same method, URL, and body collapse onto one
// execution.
func (e Endpoint) Fingerprint() Fingerprint {
	h := sha256.New()
	h.Write([]byte(e.Method))
	h.Write([]byte{0})
	h.Write([]byte(e.URL))
	h.Write([]byte{0})
	h.Write(e.Body)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Response is the immutable terminal snapshot of a completed request. It is
// shared read-only by every waiter of a de-duplicated execution.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// ProgressEvent reports transfer progress for one execution. The terminal
// event of a progress stream carries the Response; all earlier events leave
// it nil.
type ProgressEvent struct {
	BytesTransferred int64
	BytesExpected    int64
	Response         *Response
}

// Completed reports whether the event carries the terminal response.
func (p ProgressEvent) Completed() bool { return p.Response != nil }

// Fraction returns transfer completion in [0, 1]. Unknown expected sizes
// report 0 until completion and 1 once the response is attached.
func (p ProgressEvent) Fraction() float64 {
	if p.BytesExpected > 0 {
		f := float64(p.BytesTransferred) / float64(p.BytesExpected)
		if f > 1 {
			return 1
		}
		return f
	}
	if p.Completed() {
		return 1
	}
	return 0
}

// StubMode selects how stubbed responses are scheduled.
type StubMode string

const (
	// StubNever always executes live against the transport.
	StubNever StubMode = "never"
	// StubImmediate synthesizes the response synchronously on subscription.
	StubImmediate StubMode = "immediate"
	// StubDelayed delivers the response after a real-time delay.
	StubDelayed StubMode = "delayed"
	// StubScheduled gates delivery on an externally-advanced clock.
	StubScheduled StubMode = "scheduled"
)

// StubBehavior configures the stub policy for a provider or a single call.
type StubBehavior struct {
	Mode  StubMode
	Delay time.Duration
}

// Validate enforces supported mode/delay combinations.
func (b StubBehavior) Validate() error {
	switch b.Mode {
	case StubNever, StubImmediate, StubDelayed, StubScheduled:
	default:
		return fmt.Errorf("unsupported stub mode: %q", b.Mode)
	}
	if b.Delay < 0 {
		return fmt.Errorf("stub delay must be >=0")
	}
	if b.Mode == StubDelayed && b.Delay == 0 {
		return fmt.Errorf("delayed stub mode requires a positive delay")
	}
	return nil
}

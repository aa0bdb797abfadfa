package core

import (
	"errors"
	"testing"
	"time"
)

func TestStubBehaviorValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		b       StubBehavior
		wantErr bool
	}{
		{name: "never", b: StubBehavior{Mode: StubNever}},
		{name: "immediate", b: StubBehavior{Mode: StubImmediate}},
		{name: "delayed", b: StubBehavior{Mode: StubDelayed, Delay: time.Second}},
		{name: "scheduled zero delay", b: StubBehavior{Mode: StubScheduled}},
		{name: "unknown mode", b: StubBehavior{Mode: "sometimes"}, wantErr: true},
		{name: "negative delay", b: StubBehavior{Mode: StubImmediate, Delay: -time.Second}, wantErr: true},
		{name: "delayed without delay", b: StubBehavior{Mode: StubDelayed}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.b.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEndpointFingerprint(t *testing.T) {
	t.Parallel()

	base := Endpoint{Method: "GET", URL: "https://api.example.com/users?page=1"}

	same := Endpoint{Method: "GET", URL: "https://api.example.com/users?page=1"}
	if base.Fingerprint() != same.Fingerprint() {
		t.Fatalf("expected identical fingerprints for identical requests")
	}

	differing := []Endpoint{
		{Method: "POST", URL: base.URL},
		{Method: "GET", URL: "https://api.example.com/users?page=2"},
		{Method: "GET", URL: base.URL, Body: []byte(`{"q":1}`)},
	}
	for _, other := range differing {
		if base.Fingerprint() == other.Fingerprint() {
			t.Fatalf("expected distinct fingerprint for %+v", other)
		}
	}

	// Headers do not participate in the sharing key.
	withHeaders := Endpoint{Method: "GET", URL: base.URL, Headers: map[string]string{"Authorization": "Bearer x"}}
	if base.Fingerprint() != withHeaders.Fingerprint() {
		t.Fatalf("expected headers to be excluded from the fingerprint")
	}
}

func TestProgressEventFraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		event    ProgressEvent
		expected float64
	}{
		{name: "quarter", event: ProgressEvent{BytesTransferred: 1000, BytesExpected: 4000}, expected: 0.25},
		{name: "complete", event: ProgressEvent{BytesTransferred: 4000, BytesExpected: 4000}, expected: 1},
		{name: "overshoot clamps", event: ProgressEvent{BytesTransferred: 5000, BytesExpected: 4000}, expected: 1},
		{name: "unknown size pending", event: ProgressEvent{BytesTransferred: 10}, expected: 0},
		{name: "unknown size terminal", event: ProgressEvent{BytesTransferred: 10, Response: &Response{StatusCode: 200}}, expected: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.event.Fraction(); got != tc.expected {
				t.Fatalf("expected fraction %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestProviderErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewError(ErrClassTransport, "execute", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	if ClassOf(err) != ErrClassTransport {
		t.Fatalf("expected transport class, got %s", ClassOf(err))
	}

	// Re-wrapping preserves the original class.
	rewrapped := NewError(ErrClassTransport, "outer", err)
	if rewrapped != err {
		t.Fatalf("expected rewrap to return the original provider error")
	}

	if ClassOf(ErrStubUnavailable) != ErrClassStubUnavailable {
		t.Fatalf("expected stub_unavailable class for sentinel")
	}
}

func TestErrorClassValidate(t *testing.T) {
	t.Parallel()

	for _, class := range []ErrorClass{ErrClassResolution, ErrClassStubUnavailable, ErrClassTransport, ErrClassCancelled} {
		if err := class.Validate(); err != nil {
			t.Fatalf("unexpected error for %s: %v", class, err)
		}
	}
	if err := ErrorClass("partial").Validate(); err == nil {
		t.Fatalf("expected error for unsupported class")
	}
}

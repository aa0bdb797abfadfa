package integration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternhq/tern"
	"github.com/ternhq/tern/transports/httpclient"
)

func newProvider(t *testing.T, opts ...tern.Option) *tern.Provider {
	t.Helper()
	provider, err := tern.New(opts...)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestEndToEndFetchWithProgress(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 48*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	}))
	defer server.Close()

	provider := newProvider(t, tern.WithTransport(httpclient.New(httpclient.Config{ChunkBytes: 8 * 1024})))
	call := provider.RequestWithProgress(context.Background(), tern.StaticTarget{URLBase: server.URL, URLPath: "/blob"})

	var lastFraction float64
	var terminal *tern.Event
	for ev := range call.Events() {
		ev := ev
		if ev.Progress != nil {
			if f := ev.Progress.Fraction(); f < lastFraction {
				t.Fatalf("fraction decreased: %v -> %v", lastFraction, f)
			} else {
				lastFraction = f
			}
		}
		if ev.Terminal != "" {
			if terminal != nil {
				t.Fatalf("received a second terminal event")
			}
			terminal = &ev
		}
	}
	if terminal == nil || terminal.Terminal != tern.TerminalCompleted {
		t.Fatalf("expected completed terminal, got %+v", terminal)
	}
	if len(terminal.Response.Body) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(terminal.Response.Body))
	}
	if lastFraction != 1 {
		t.Fatalf("expected final fraction 1, got %v", lastFraction)
	}
}

func TestConcurrentIdenticalRequestsHitServerOnce(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`{"id":42}`))
	}))
	defer server.Close()

	provider := newProvider(t)
	ctx := context.Background()
	target := tern.StaticTarget{URLBase: server.URL, URLPath: "/items/42"}

	first := provider.Request(ctx, target).Events()
	second := provider.Request(ctx, target).Events()

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	close(release)

	firstEv := <-first
	secondEv := <-second
	if firstEv.Terminal != tern.TerminalCompleted || secondEv.Terminal != tern.TerminalCompleted {
		t.Fatalf("expected both waiters to complete, got %q and %q", firstEv.Terminal, secondEv.Terminal)
	}
	if firstEv.Response != secondEv.Response {
		t.Fatalf("expected the shared response instance")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single server hit, got %d", hits.Load())
	}
}

func TestCancellationStopsDownload(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := newProvider(t)
	call := provider.Request(context.Background(), tern.StaticTarget{URLBase: server.URL, URLPath: "/slow"})
	events := call.Events()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never saw the request")
	}
	call.Cancel()

	ev, ok := <-events
	if !ok || ev.Terminal != tern.TerminalInterrupted {
		t.Fatalf("expected interrupted terminal, got %+v", ev)
	}
	if _, ok := <-events; ok {
		t.Fatalf("expected stream to close after the terminal")
	}
	deadline := time.Now().Add(2 * time.Second)
	for provider.InflightCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if provider.InflightCount() != 0 {
		t.Fatalf("expected registry to drain after cancellation")
	}
}

func TestStubbedProviderNeverTouchesServer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	manifest := []byte(`{
		"rules": [
			{
				"name": "list-items",
				"match": {"url": "/items", "url_mode": "prefix"},
				"respond": {"status_code": 200, "body": "[{\"id\":1},{\"id\":2}]"}
			}
		]
	}`)
	provider := newProvider(t,
		tern.WithStubBehavior(tern.StubBehavior{Mode: tern.StubImmediate}),
		tern.WithStubManifest(manifest),
	)

	resp, err := provider.Request(context.Background(), tern.StaticTarget{
		URLBase: server.URL,
		URLPath: "/items",
		Sample:  []byte(`[]`),
	}).Response(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != `[{"id":1},{"id":2}]` {
		t.Fatalf("expected manifest body, got %q", resp.Body)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no server traffic, got %d hits", hits.Load())
	}
}

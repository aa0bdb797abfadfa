package tern

import "github.com/ternhq/tern/pkg/contracts/v1/core"

// Plugin observes and optionally rewrites requests. Plugins run in
// registration order: PrepareEndpoint before the in-flight/stub decision,
// DidComplete after the terminal result (once per subscriber of a shared
// execution).
type Plugin interface {
	// PrepareEndpoint may return a modified endpoint; the result feeds
	// fingerprinting and execution.
	PrepareEndpoint(ep core.Endpoint) core.Endpoint
	// DidComplete observes the terminal result. resp is nil on failure; err
	// is nil on success.
	DidComplete(ep core.Endpoint, resp *core.Response, err error)
}

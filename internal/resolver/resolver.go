// Package resolver maps target descriptors to fully-formed endpoints.
package resolver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Resolve derives the request specification from a target. It is pure and
// deterministic: the same target always yields a byte-identical endpoint,
// which fingerprinting and stub matching depend on.
func Resolve(t core.Target) (core.Endpoint, error) {
	if t == nil {
		return core.Endpoint{}, core.NewError(core.ErrClassResolution, "resolve", fmt.Errorf("target is required"))
	}

	base, err := url.Parse(strings.TrimSpace(t.BaseURL()))
	if err != nil {
		return core.Endpoint{}, core.NewError(core.ErrClassResolution, "resolve", fmt.Errorf("parse base url: %w", err))
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return core.Endpoint{}, core.NewError(core.ErrClassResolution, "resolve", fmt.Errorf("unsupported scheme %q", base.Scheme))
	}
	if base.Host == "" {
		return core.Endpoint{}, core.NewError(core.ErrClassResolution, "resolve", fmt.Errorf("base url %q has no host", t.BaseURL()))
	}

	resolved := base
	if p := t.Path(); p != "" {
		resolved = base.JoinPath(p)
	}

	// url.Values.Encode sorts keys, keeping the resolved URL deterministic.
	query := resolved.Query()
	for key, value := range t.Query() {
		if key == "" {
			return core.Endpoint{}, core.NewError(core.ErrClassResolution, "resolve", fmt.Errorf("query parameter with empty key"))
		}
		query.Set(key, value)
	}
	resolved.RawQuery = query.Encode()

	method := strings.ToUpper(strings.TrimSpace(t.Method()))
	if method == "" {
		method = http.MethodGet
	}

	var headers map[string]string
	if src := t.Headers(); len(src) > 0 {
		headers = make(map[string]string, len(src))
		for key, value := range src {
			headers[key] = value
		}
	}

	var body []byte
	if src := t.Body(); len(src) > 0 {
		body = make([]byte, len(src))
		copy(body, src)
	}

	ep := core.Endpoint{
		Method:  method,
		URL:     resolved.String(),
		Headers: headers,
		Body:    body,
	}
	if err := ep.Validate(); err != nil {
		return core.Endpoint{}, core.NewError(core.ErrClassResolution, "resolve", err)
	}
	return ep, nil
}

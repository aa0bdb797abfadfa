// Package authplugin injects authorization credentials into outgoing
// requests.
package authplugin

import (
	"fmt"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Scheme selects the Authorization header format.
type Scheme string

const (
	// SchemeBearer emits "Authorization: Bearer <token>".
	SchemeBearer Scheme = "Bearer"
	// SchemeBasic emits "Authorization: Basic <token>"; the token must
	// already be base64-encoded credentials.
	SchemeBasic Scheme = "Basic"
)

// Validate enforces supported schemes.
func (s Scheme) Validate() error {
	switch s {
	case SchemeBearer, SchemeBasic:
		return nil
	default:
		return fmt.Errorf("unsupported auth scheme: %q", s)
	}
}

// TokenProvider supplies the current credential. It is called once per
// prepared request, so rotating tokens are picked up without rebuilding the
// provider.
type TokenProvider func() string

// Plugin sets the Authorization header on every prepared endpoint. An
// existing Authorization header on the endpoint wins.
type Plugin struct {
	scheme Scheme
	token  TokenProvider
}

// New builds the plugin.
func New(scheme Scheme, token TokenProvider) (*Plugin, error) {
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	return &Plugin{scheme: scheme, token: token}, nil
}

// NewBearer builds a bearer-token plugin around a static token.
func NewBearer(token string) *Plugin {
	p, _ := New(SchemeBearer, func() string { return token })
	return p
}

// PrepareEndpoint injects the Authorization header.
func (p *Plugin) PrepareEndpoint(ep core.Endpoint) core.Endpoint {
	if _, present := ep.Headers["Authorization"]; present {
		return ep
	}
	token := p.token()
	if token == "" {
		return ep
	}
	headers := make(map[string]string, len(ep.Headers)+1)
	for k, v := range ep.Headers {
		headers[k] = v
	}
	headers["Authorization"] = fmt.Sprintf("%s %s", p.scheme, token)
	ep.Headers = headers
	return ep
}

// DidComplete is a no-op; the plugin only shapes outgoing requests.
func (p *Plugin) DidComplete(ep core.Endpoint, resp *core.Response, err error) {}

// Package logplugin logs request lifecycles through zerolog.
package logplugin

import (
	"github.com/rs/zerolog"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Plugin writes one line per prepared endpoint and one per terminal result.
type Plugin struct {
	log zerolog.Logger
}

// New builds the plugin around log.
func New(log zerolog.Logger) *Plugin {
	return &Plugin{log: log}
}

// PrepareEndpoint logs the outgoing request and returns it unchanged.
func (p *Plugin) PrepareEndpoint(ep core.Endpoint) core.Endpoint {
	p.log.Debug().Str("method", ep.Method).Str("url", ep.URL).Msg("request prepared")
	return ep
}

// DidComplete logs the terminal result.
func (p *Plugin) DidComplete(ep core.Endpoint, resp *core.Response, err error) {
	if err != nil {
		p.log.Warn().Str("method", ep.Method).Str("url", ep.URL).Err(err).Msg("request failed")
		return
	}
	p.log.Info().Str("method", ep.Method).Str("url", ep.URL).Int("status", resp.StatusCode).Int("bytes", len(resp.Body)).Msg("request completed")
}

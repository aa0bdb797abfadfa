package tern

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ternhq/tern/internal/clock"
	"github.com/ternhq/tern/internal/logging"
	"github.com/ternhq/tern/internal/stub"
	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

type config struct {
	behavior       core.StubBehavior
	manifest       *stub.Manifest
	transport      Transport
	clk            clock.Clock
	log            zerolog.Logger
	plugins        []Plugin
	trackInflights bool
}

func defaultConfig() config {
	return config{
		behavior:       core.StubBehavior{Mode: core.StubNever},
		clk:            clock.NewReal(),
		log:            logging.Nop(),
		trackInflights: true,
	}
}

// Option configures a Provider at construction.
type Option func(*config) error

// WithStubBehavior sets the default stub scheduling for every call.
func WithStubBehavior(b StubBehavior) Option {
	return func(c *config) error {
		if err := b.Validate(); err != nil {
			return err
		}
		c.behavior = b
		return nil
	}
}

// WithDelayedStubs stubs every call with delivery after d.
func WithDelayedStubs(d time.Duration) Option {
	return WithStubBehavior(StubBehavior{Mode: StubDelayed, Delay: d})
}

// WithTransport replaces the live transport collaborator.
func WithTransport(t Transport) Option {
	return func(c *config) error {
		c.transport = t
		return nil
	}
}

// WithClock injects the clock driving delayed and scheduled stub delivery.
// Pair with NewVirtualClock for deterministic tests.
func WithClock(clk Clock) Option {
	return func(c *config) error {
		c.clk = clk
		return nil
	}
}

// WithLogger attaches a zerolog logger. The default is disabled.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) error {
		c.log = log
		return nil
	}
}

// WithInflightTracking toggles de-duplication of concurrent identical
// requests. Enabled by default.
func WithInflightTracking(enabled bool) Option {
	return func(c *config) error {
		c.trackInflights = enabled
		return nil
	}
}

// WithPlugins appends ordered pre/post-processing hooks.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *config) error {
		c.plugins = append(c.plugins, plugins...)
		return nil
	}
}

// WithStubManifest installs stub rules from raw manifest JSON. Rules apply
// whenever a call runs in a stubbed mode.
func WithStubManifest(data []byte) Option {
	return func(c *config) error {
		m, err := stub.ParseManifest(data)
		if err != nil {
			return err
		}
		c.manifest = m
		return nil
	}
}

// WithStubManifestFile installs stub rules from a manifest file.
func WithStubManifestFile(path string) Option {
	return func(c *config) error {
		m, err := stub.LoadManifest(path)
		if err != nil {
			return err
		}
		c.manifest = m
		return nil
	}
}

// ValidateStubManifest checks raw manifest JSON against the manifest schema
// without installing it.
func ValidateStubManifest(data []byte) error {
	_, err := stub.ParseManifest(data)
	return err
}

// CallOption overrides provider configuration for a single call.
type CallOption func(*core.StubBehavior)

// CallWithStub overrides the stub behavior for one call.
func CallWithStub(b StubBehavior) CallOption {
	return func(dst *core.StubBehavior) { *dst = b }
}

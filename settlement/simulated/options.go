package simulated

import (
	"io"
	"log/slog"
	"time"

	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithRegistry sets the token registry.
func WithRegistry(r *token.Registry) Option {
	return func(g *Gateway) { g.tokens = r }
}

// WithClock sets the source of "now" for creation and expiry.
func WithClock(c types.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithLatency injects an artificial delay before each mutation.
func WithLatency(d time.Duration) Option {
	return func(g *Gateway) { g.latency = d }
}

// WithRandom replaces the secure random source. Use only in tests.
func WithRandom(r io.Reader) Option {
	return func(g *Gateway) { g.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithoutMigrate skips store migrations on Start.
func WithoutMigrate() Option {
	return func(g *Gateway) { g.migrate = false }
}

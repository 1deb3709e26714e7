package chain

import (
	"log/slog"

	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithRegistry sets the token registry used to map symbols to token contracts.
func WithRegistry(r *token.Registry) Option {
	return func(g *Gateway) { g.tokens = r }
}

// WithClock sets the clock used when a block timestamp cannot be read.
func WithClock(c types.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

package extension

import (
	"log/slog"
	"time"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/plugin"
	"github.com/xraph/paylink/store"
)

// Option configures the Paylink Forge extension.
type Option func(*Extension)

// WithStore backs the simulated ledger with s, for example a grove-backed
// postgres, sqlite or mongo store. Unused in authoritative mode.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLogger sets the logger handed to the engine, gateway and store.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPaylinkOption passes a paylink.Option through to the underlying engine.
func WithPaylinkOption(opt paylink.Option) Option {
	return func(e *Extension) {
		e.paylinkOpts = append(e.paylinkOpts, opt)
	}
}

// WithPlugin registers a paylink plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.paylinkOpts = append(e.paylinkOpts, paylink.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithContract selects the authoritative engine at addr, reached through
// rpcURL and signing with privateKey.
func WithContract(addr, rpcURL, privateKey string) Option {
	return func(e *Extension) {
		e.config.ContractAddress = addr
		e.config.RPCURL = rpcURL
		e.config.PrivateKey = privateKey
	}
}

// WithStorePath sets the simulated ledger file.
func WithStorePath(path string) Option {
	return func(e *Extension) { e.config.StorePath = path }
}

// WithConfirmTimeout bounds the wait for authoritative transactions.
func WithConfirmTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.ConfirmTimeout = d }
}

// WithSimulatedLatency delays each simulated mutation.
func WithSimulatedLatency(d time.Duration) Option {
	return func(e *Extension) { e.config.SimulatedLatency = d }
}

// WithDisableMigrate prevents store migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

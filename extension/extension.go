// Package extension provides the Forge extension adapter for Paylink.
//
// It implements the forge.Extension interface to integrate Paylink into a
// Forge application: configuration loading, settlement mode selection, DI
// registration of the *paylink.Engine, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.paylink" or "paylink" keys.
package extension

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "paylink"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Stablecoin invoice and merchant balance ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Paylink as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *paylink.Engine
	store       store.Store
	logger      *slog.Logger
	paylinkOpts []paylink.Option
}

// New creates a new Paylink Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
		logger:        slog.Default().With("extension", ExtensionName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Engine.
// This is nil until Register is called.
func (e *Extension) Engine() *paylink.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, builds the
// gateway the configuration selects, and registers the engine in the DI
// container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	eng, err := e.openEngine(context.Background())
	if err != nil {
		return err
	}
	e.engine = eng

	e.Logger().Info("paylink: settlement mode selected",
		forge.F("mode", string(eng.Mode())),
	)

	return vessel.Provide(fapp.Container(), func() (*paylink.Engine, error) {
		return e.engine, nil
	})
}

// openEngine builds the engine from the resolved configuration. The engine,
// gateway and store all log through the extension's logger.
func (e *Extension) openEngine(ctx context.Context) (*paylink.Engine, error) {
	return OpenEngine(ctx, e.config, e.store, e.logger, e.paylinkOpts...)
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("paylink: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("paylink: engine not initialized")
	}
	return e.engine.Ping(ctx)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("paylink: configuration is required but not found in config files; " +
				"ensure 'extensions.paylink' or 'paylink' key exists in your config")
		}
		e.config = programmaticConfig.WithDefaults()
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := e.config.Validate(); err != nil {
		return err
	}

	e.Logger().Debug("paylink: configuration loaded",
		forge.F("mode", string(e.config.Mode())),
		forge.F("rpc_url", e.config.RPCURL),
		forge.F("confirm_timeout", e.config.ConfirmTimeout),
		forge.F("lookback_blocks", e.config.LookbackBlocks),
		forge.F("store_path", e.config.StorePath),
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.paylink", "paylink"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("paylink: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("paylink: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.ContractAddress, programmaticConfig.ContractAddress)
	fill(&yamlConfig.RPCURL, programmaticConfig.RPCURL)
	fill(&yamlConfig.PrivateKey, programmaticConfig.PrivateKey)
	fill(&yamlConfig.USDTAddress, programmaticConfig.USDTAddress)
	fill(&yamlConfig.FDUSDAddress, programmaticConfig.FDUSDAddress)
	fill(&yamlConfig.StorePath, programmaticConfig.StorePath)

	if yamlConfig.ChainID == 0 {
		yamlConfig.ChainID = programmaticConfig.ChainID
	}
	if yamlConfig.ConfirmTimeout == 0 {
		yamlConfig.ConfirmTimeout = programmaticConfig.ConfirmTimeout
	}
	if yamlConfig.ReadRetries == 0 {
		yamlConfig.ReadRetries = programmaticConfig.ReadRetries
	}
	if yamlConfig.LookbackBlocks == 0 {
		yamlConfig.LookbackBlocks = programmaticConfig.LookbackBlocks
	}
	if yamlConfig.BlockTime == 0 {
		yamlConfig.BlockTime = programmaticConfig.BlockTime
	}
	if yamlConfig.SimulatedLatency == 0 {
		yamlConfig.SimulatedLatency = programmaticConfig.SimulatedLatency
	}

	return yamlConfig.WithDefaults()
}

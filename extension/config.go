package extension

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/store/file"
)

// Config holds the Paylink extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.paylink" or "paylink" keys).
type Config struct {
	// ContractAddress selects the authoritative engine when it is a valid,
	// non-zero address. Anything else runs the simulated ledger.
	ContractAddress string `json:"contract_address" mapstructure:"contract_address" yaml:"contract_address"`

	// RPCURL is the settlement chain endpoint. Required in authoritative mode.
	RPCURL string `json:"rpc_url" mapstructure:"rpc_url" yaml:"rpc_url" validate:"omitempty,url"`

	// PrivateKey signs authoritative transactions. Required in authoritative mode.
	PrivateKey string `json:"-" mapstructure:"private_key" yaml:"private_key" validate:"omitempty,hexadecimal"`

	// ChainID of the settlement chain. Zero asks the node.
	ChainID int64 `json:"chain_id" mapstructure:"chain_id" yaml:"chain_id" validate:"gte=0"`

	// ConfirmTimeout bounds the wait for an authoritative transaction (default: 2m).
	ConfirmTimeout time.Duration `json:"confirm_timeout" mapstructure:"confirm_timeout" yaml:"confirm_timeout" validate:"gte=0"`

	// ReadRetries is the number of attempts for an authoritative read (default: 3).
	ReadRetries uint `json:"read_retries" mapstructure:"read_retries" yaml:"read_retries"`

	// LookbackBlocks is how far back authoritative listings scan (default: 50).
	LookbackBlocks uint64 `json:"lookback_blocks" mapstructure:"lookback_blocks" yaml:"lookback_blocks"`

	// BlockTime is the expected block interval of the settlement chain (default: 3s).
	BlockTime time.Duration `json:"block_time" mapstructure:"block_time" yaml:"block_time" validate:"gte=0"`

	// USDTAddress and FDUSDAddress override the token registry.
	USDTAddress  string `json:"usdt_address" mapstructure:"usdt_address" yaml:"usdt_address" validate:"omitempty,eth_addr"`
	FDUSDAddress string `json:"fdusd_address" mapstructure:"fdusd_address" yaml:"fdusd_address" validate:"omitempty,eth_addr"`

	// StorePath is the simulated ledger file (default: ".paylink/ledger.json").
	// Ignored when a store is supplied with WithStore.
	StorePath string `json:"store_path" mapstructure:"store_path" yaml:"store_path"`

	// SimulatedLatency delays each simulated mutation.
	SimulatedLatency time.Duration `json:"simulated_latency" mapstructure:"simulated_latency" yaml:"simulated_latency" validate:"gte=0"`

	// DisableMigrate prevents store migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout: 2 * time.Minute,
		ReadRetries:    3,
		LookbackBlocks: 50,
		BlockTime:      3 * time.Second,
		StorePath:      file.DefaultPath,
	}
}

// WithDefaults fills zero-valued fields with defaults.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if c.ReadRetries == 0 {
		c.ReadRetries = defaults.ReadRetries
	}
	if c.LookbackBlocks == 0 {
		c.LookbackBlocks = defaults.LookbackBlocks
	}
	if c.BlockTime == 0 {
		c.BlockTime = defaults.BlockTime
	}
	if c.StorePath == "" {
		c.StorePath = defaults.StorePath
	}
	return c
}

// Mode reports which backend the configuration selects.
func (c Config) Mode() settlement.Mode {
	return settlement.DetectMode(c.ContractAddress)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field formats and the fields the selected mode needs.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("paylink: invalid config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %q", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	if c.Mode() == settlement.ModeAuthoritative {
		if c.RPCURL == "" {
			errs = append(errs, errors.New("rpc_url is required with a contract address"))
		}
		if c.PrivateKey == "" {
			errs = append(errs, errors.New("private_key is required with a contract address"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("paylink: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

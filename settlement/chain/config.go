package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds the connection and wait policy for the authoritative engine.
type Config struct {
	// RPCURL is the JSON-RPC endpoint of the settlement chain.
	RPCURL string
	// ChainID signs transactions for this chain. Zero asks the node.
	ChainID int64
	// Contract is the invoice contract address.
	Contract common.Address
	// PrivateKey is the hex-encoded signing key of the engine's caller.
	PrivateKey string

	// ConfirmTimeout bounds the wait for a submitted transaction to be mined.
	ConfirmTimeout time.Duration
	// ReadRetries is the number of attempts for a view call.
	ReadRetries uint
	// LookbackBlocks is how far back listings and activity scan logs.
	LookbackBlocks uint64
	// BlockTime is the expected block interval, used to size time windows.
	BlockTime time.Duration
}

// DefaultConfig returns the default wait policy with no endpoint set.
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout: 2 * time.Minute,
		ReadRetries:    3,
		LookbackBlocks: 50,
		BlockTime:      3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.ReadRetries == 0 {
		c.ReadRetries = def.ReadRetries
	}
	if c.LookbackBlocks == 0 {
		c.LookbackBlocks = def.LookbackBlocks
	}
	if c.BlockTime <= 0 {
		c.BlockTime = def.BlockTime
	}
	return c
}

// Validate checks the fields needed to dial.
func (c Config) Validate() error {
	var errs []error
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc url is required"))
	}
	if c.Contract == (common.Address{}) {
		errs = append(errs, errors.New("contract address is required"))
	}
	if c.PrivateKey == "" {
		errs = append(errs, errors.New("private key is required"))
	}
	if c.ChainID < 0 {
		errs = append(errs, fmt.Errorf("chain id %d is negative", c.ChainID))
	}
	if len(errs) > 0 {
		return fmt.Errorf("chain: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// blocksFor returns the number of blocks covering d, at least one.
func (c Config) blocksFor(d time.Duration) uint64 {
	if c.BlockTime <= 0 {
		return 1
	}
	n := uint64(d / c.BlockTime)
	if n == 0 {
		return 1
	}
	return n
}

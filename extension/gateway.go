package extension

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/settlement/chain"
	"github.com/xraph/paylink/settlement/simulated"
	"github.com/xraph/paylink/store"
	"github.com/xraph/paylink/store/file"
	"github.com/xraph/paylink/token"
)

// Registry builds the token registry from the configured overrides.
func (c Config) Registry() *token.Registry {
	var opts []token.Option
	if c.USDTAddress != "" {
		opts = append(opts, token.WithAddress(token.USDT, common.HexToAddress(c.USDTAddress)))
	}
	if c.FDUSDAddress != "" {
		opts = append(opts, token.WithAddress(token.FDUSD, common.HexToAddress(c.FDUSDAddress)))
	}
	return token.NewRegistry(opts...)
}

// OpenGateway builds the gateway the configuration selects. The choice is
// made once, here. In simulated mode st backs the ledger; a nil st opens the
// file store at cfg.StorePath. In authoritative mode st is unused.
func OpenGateway(ctx context.Context, cfg Config, st store.Store, logger *slog.Logger) (settlement.Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry()

	if cfg.Mode() == settlement.ModeAuthoritative {
		if st != nil {
			logger.Warn("paylink: store ignored in authoritative mode")
		}
		gw, err := chain.Dial(ctx, chain.Config{
			RPCURL:         cfg.RPCURL,
			ChainID:        cfg.ChainID,
			Contract:       common.HexToAddress(cfg.ContractAddress),
			PrivateKey:     cfg.PrivateKey,
			ConfirmTimeout: cfg.ConfirmTimeout,
			ReadRetries:    cfg.ReadRetries,
			LookbackBlocks: cfg.LookbackBlocks,
			BlockTime:      cfg.BlockTime,
		}, chain.WithRegistry(reg), chain.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return gw, nil
	}

	if st == nil {
		path := cfg.StorePath
		if path == "" {
			path = file.DefaultPath
		}
		fs, err := file.Open(path, file.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("paylink: open ledger file: %w", err)
		}
		st = fs
	}

	opts := []simulated.Option{
		simulated.WithRegistry(reg),
		simulated.WithLatency(cfg.SimulatedLatency),
		simulated.WithLogger(logger),
	}
	if cfg.DisableMigrate {
		opts = append(opts, simulated.WithoutMigrate())
	}
	return simulated.New(st, opts...), nil
}

// OpenEngine builds the gateway and an Engine over it.
func OpenEngine(ctx context.Context, cfg Config, st store.Store, logger *slog.Logger, opts ...paylink.Option) (*paylink.Engine, error) {
	gw, err := OpenGateway(ctx, cfg, st, logger)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		opts = append([]paylink.Option{paylink.WithLogger(logger)}, opts...)
	}
	return paylink.New(gw, opts...), nil
}

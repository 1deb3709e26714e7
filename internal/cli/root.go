package cli

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/extension"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/settlement/chain"
)

var (
	version = "dev"
	commit  = "none"
)

// globals holds the persistent flags.
type globals struct {
	configPath string
	caller     string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "paylink",
		Short:         "Stablecoin invoices and merchant balances",
		Long:          "Paylink creates and pays USDT and FDUSD invoices and manages merchant balances, against an on-chain ledger or a local simulated one.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", defaultConfigFile, "path to paylink.yaml")
	cmd.PersistentFlags().StringVar(&g.caller, "as", "", "caller address (defaults to the signer in authoritative mode)")
	cmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "print JSON")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newModeCmd(g))
	cmd.AddCommand(newInvoiceCmd(g))
	cmd.AddCommand(newBalanceCmd(g))
	cmd.AddCommand(newWithdrawCmd(g))
	cmd.AddCommand(newActivityCmd(g))
	cmd.AddCommand(newSalesCmd(g))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

// session is an opened engine and the caller identity for one command.
type session struct {
	engine *paylink.Engine
	gw     settlement.Gateway
	g      *globals
}

// open loads the config, selects the gateway and starts the engine.
func (g *globals) open(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.level()}))

	gw, err := extension.OpenGateway(cmd.Context(), cfg.Paylink, nil, logger)
	if err != nil {
		return nil, err
	}
	eng := paylink.New(gw, paylink.WithLogger(logger))
	if err := eng.Start(cmd.Context()); err != nil {
		_ = gw.Close()
		return nil, err
	}
	return &session{engine: eng, gw: gw, g: g}, nil
}

func (s *session) close() {
	_ = s.engine.Stop()
}

// caller returns the acting address: --as, or the signer of the
// authoritative engine.
func (s *session) caller() (common.Address, error) {
	if s.g.caller != "" {
		return paylink.ParseAddress(s.g.caller)
	}
	if cg, ok := s.gw.(*chain.Gateway); ok {
		return cg.Signer(), nil
	}
	return common.Address{}, fmt.Errorf("%w: --as is required in simulated mode", paylink.ErrInvalidAddress)
}

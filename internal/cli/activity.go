package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/paylink/activity"
)

func newActivityCmd(g *globals) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the caller's recent invoices, payments and withdrawals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := nonNegative("--limit", limit); err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			merchant, err := s.caller()
			if err != nil {
				return err
			}
			opts := activity.ListOpts{Limit: limit}
			if since > 0 {
				opts.Since = time.Now().Add(-since).Unix()
			}
			events, err := s.engine.Activity(cmd.Context(), merchant, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				return writeJSON(out, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No activity.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(out, "%s  %-16s %12s %-5s", formatTime(e.At), e.Kind, e.Amount.Format(2), e.Token)
				if e.Kind != activity.KindWithdrawal {
					fmt.Fprintf(out, "  %s", e.InvoiceID.Hex())
				} else {
					fmt.Fprintf(out, "  to %s", e.Counterparty.Hex())
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 72h")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to show (0 for all)")
	return cmd
}

func newSalesCmd(g *globals) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "sales",
		Short: "Sum the caller's paid invoices per token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			merchant, err := s.caller()
			if err != nil {
				return err
			}
			totals, err := s.engine.SalesSince(cmd.Context(), merchant, time.Now().Add(-window).Unix())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				return writeJSON(out, totals)
			}
			printTotals(out, totals)
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "look-back window")
	return cmd
}

func newModeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Print which settlement backend the configuration selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			mode := cfg.Paylink.Mode()
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"mode": string(mode)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		},
	}
}

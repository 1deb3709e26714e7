package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

func newInvoiceCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create, inspect and pay invoices",
	}
	cmd.AddCommand(newInvoiceCreateCmd(g))
	cmd.AddCommand(newInvoiceGetCmd(g))
	cmd.AddCommand(newInvoicePayCmd(g))
	cmd.AddCommand(newInvoiceListCmd(g))
	return cmd
}

type invoiceResult struct {
	Invoice *invoice.Invoice    `json:"invoice"`
	Receipt *settlement.Receipt `json:"receipt,omitempty"`
}

func (g *globals) printInvoiceResult(cmd *cobra.Command, inv *invoice.Invoice, rcpt *settlement.Receipt) error {
	out := cmd.OutOrStdout()
	if g.jsonOutput {
		return writeJSON(out, invoiceResult{Invoice: inv, Receipt: rcpt})
	}
	printInvoice(out, inv)
	if rcpt != nil {
		printReceipt(out, *rcpt)
	}
	return nil
}

func newInvoiceCreateCmd(g *globals) *cobra.Command {
	var (
		tokenFlag string
		amount    string
		note      string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an unpaid invoice payable to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sym, err := token.ParseSymbol(tokenFlag)
			if err != nil {
				return fmt.Errorf("%w: %w", paylink.ErrInvalidToken, err)
			}
			amt, err := types.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("%w: %w", paylink.ErrInvalidAmount, err)
			}
			if expiresIn < 0 {
				return fmt.Errorf("%w: --expires-in must not be negative", paylink.ErrInvalidExpiry)
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
			var expiresAt int64
			if expiresIn > 0 {
				expiresAt = time.Now().Add(expiresIn).Unix()
			}

			inv, rcpt, err := s.engine.CreateInvoice(cmd.Context(), invoice.Draft{
				Merchant:  merchant,
				Token:     sym,
				Amount:    amt,
				Note:      note,
				ExpiresAt: expiresAt,
			})
			if err != nil {
				return err
			}
			return g.printInvoiceResult(cmd, inv, &rcpt)
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", string(token.USDT), "token symbol (USDT or FDUSD)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in whole tokens, e.g. 100.00")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "expiry from now, e.g. 24h (0 never expires)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newInvoiceGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <invoice-id>",
		Short: "Show an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := invoice.ParseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			inv, err := s.engine.GetInvoice(cmd.Context(), invID)
			if err != nil {
				return err
			}
			if inv == nil {
				return fmt.Errorf("%w: %s", paylink.ErrInvoiceNotFound, invID.Hex())
			}
			return g.printInvoiceResult(cmd, inv, nil)
		},
	}
}

func newInvoicePayCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <invoice-id>",
		Short: "Pay an invoice as the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := invoice.ParseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			payer, err := s.caller()
			if err != nil {
				return err
			}
			inv, rcpt, err := s.engine.PayInvoice(cmd.Context(), invID, payer)
			if hash, pending := paylink.IsPending(err); pending {
				return fmt.Errorf("payment submitted in %s but not confirmed; check the invoice before paying again: %w", hash.Hex(), err)
			}
			if err != nil {
				return err
			}
			return g.printInvoiceResult(cmd, inv, &rcpt)
		},
	}
}

func newInvoiceListCmd(g *globals) *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the caller's invoices, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := nonNegative("--limit", limit); err != nil {
				return err
			}
			if err := nonNegative("--offset", offset); err != nil {
				return err
			}
			opts := invoice.ListOpts{Limit: limit, Offset: offset}
			switch invoice.Status(status) {
			case invoice.StatusPaid, invoice.StatusUnpaid:
				opts.Status = invoice.Status(status)
			case "", "all":
			default:
				return errors.New("--status must be paid, unpaid or all")
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
			invs, err := s.engine.ListInvoices(cmd.Context(), merchant, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				return writeJSON(out, invs)
			}
			if len(invs) == 0 {
				fmt.Fprintln(out, "No invoices.")
				return nil
			}
			for _, inv := range invs {
				state := "unpaid"
				if inv.Paid {
					state = "paid"
				}
				fmt.Fprintf(out, "%s  %12s %-5s  %-6s  %s\n",
					inv.ID.Hex(), inv.Amount.Format(2), inv.Token, state, formatTime(inv.CreatedAt))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "paid, unpaid or all")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum invoices to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "invoices to skip")
	return cmd
}

func nonNegative(flag string, v int) error {
	if v < 0 {
		return fmt.Errorf("%s must not be negative, got %d", flag, v)
	}
	return nil
}

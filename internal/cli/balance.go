package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

func newBalanceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the caller's withdrawable balances",
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
			bals, err := s.engine.Balances(cmd.Context(), merchant)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				return writeJSON(out, bals)
			}
			totals := make(map[token.Symbol]types.Amount, len(bals))
			for _, b := range bals {
				totals[b.Token] = b.Amount
			}
			printTotals(out, totals)
			return nil
		},
	}
}

type withdrawalResult struct {
	Withdrawal *balance.Withdrawal `json:"withdrawal"`
	Receipt    settlement.Receipt  `json:"receipt"`
}

func newWithdrawCmd(g *globals) *cobra.Command {
	var (
		tokenFlag string
		amount    string
		to        string
	)

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Move funds from the caller's balance to a recipient",
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
			recipient, err := paylink.ParseAddress(to)
			if err != nil {
				return fmt.Errorf("%w: %w", paylink.ErrInvalidRecipient, err)
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
			w, rcpt, err := s.engine.Withdraw(cmd.Context(), balance.Request{
				Merchant:  merchant,
				Token:     sym,
				Amount:    amt,
				Recipient: recipient,
			})
			if hash, pending := paylink.IsPending(err); pending {
				return fmt.Errorf("withdrawal submitted in %s but not confirmed; check the balance before retrying: %w", hash.Hex(), err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOutput {
				return writeJSON(out, withdrawalResult{Withdrawal: w, Receipt: rcpt})
			}
			fmt.Fprintf(out, "Withdrew  %s %s to %s\n", w.Amount.Format(2), w.Token, w.Recipient.Hex())
			fmt.Fprintf(out, "ID        %s\n", w.ID)
			printReceipt(out, rcpt)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", string(token.USDT), "token symbol (USDT or FDUSD)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in whole tokens")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func printInvoice(w io.Writer, inv *invoice.Invoice) {
	status := "unpaid"
	if inv.Paid {
		status = "paid"
	}
	fmt.Fprintf(w, "Invoice   %s\n", inv.ID.Hex())
	fmt.Fprintf(w, "Merchant  %s\n", inv.Merchant.Hex())
	fmt.Fprintf(w, "Amount    %s %s\n", inv.Amount.Format(2), inv.Token)
	if inv.Note != "" {
		fmt.Fprintf(w, "Note      %s\n", inv.Note)
	}
	fmt.Fprintf(w, "Created   %s\n", formatTime(inv.CreatedAt))
	if inv.ExpiresAt != 0 {
		fmt.Fprintf(w, "Expires   %s\n", formatTime(inv.ExpiresAt))
	}
	fmt.Fprintf(w, "Status    %s\n", status)
	if inv.Paid {
		fmt.Fprintf(w, "Payer     %s\n", inv.Payer.Hex())
		fmt.Fprintf(w, "Paid      %s\n", formatTime(inv.PaidAt))
	}
}

func printReceipt(w io.Writer, rcpt settlement.Receipt) {
	fmt.Fprintf(w, "Tx        %s (%s)\n", rcpt.TxHash.Hex(), rcpt.Mode)
}

func printTotals(w io.Writer, totals map[token.Symbol]types.Amount) {
	for _, sym := range token.Symbols {
		amt, ok := totals[sym]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-6s %s\n", sym, amt.Format(2))
	}
}

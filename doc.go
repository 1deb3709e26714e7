// Package paylink is a stablecoin invoice and balance ledger for Go applications.
//
// Paylink is designed as a library, not a service. A merchant creates an
// invoice for an amount of USDT or FDUSD, a payer settles it exactly once, and
// the paid amount accumulates in the merchant's withdrawable balance. It
// provides:
//
//   - Invoices paid at most once, with expiry evaluated at payment time
//   - Per-merchant, per-token balances that never go negative
//   - Withdrawals that debit and transfer in one atomic step
//   - Two interchangeable backends: an authoritative EVM invoice contract, or
//     a local simulation over memory, file, PostgreSQL, SQLite or MongoDB
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Pick a backend once, at startup:
//
//	import (
//	    "github.com/xraph/paylink"
//	    "github.com/xraph/paylink/settlement/simulated"
//	    "github.com/xraph/paylink/store/memory"
//	)
//
//	gw := simulated.New(memory.New())
//	engine := paylink.New(gw)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// Create and pay an invoice:
//
//	inv, _, err := engine.CreateInvoice(ctx, invoice.Draft{
//	    Merchant: merchant,
//	    Token:    token.USDT,
//	    Amount:   types.MustParseAmount("100.00"),
//	    Note:     "order #42",
//	})
//	_, receipt, err := engine.PayInvoice(ctx, inv.ID, payer)
//
// Withdraw the proceeds:
//
//	_, _, err = engine.Withdraw(ctx, balance.Request{
//	    Merchant:  merchant,
//	    Token:     token.USDT,
//	    Amount:    types.MustParseAmount("100.00"),
//	    Recipient: treasury,
//	})
//
// # Authoritative Mode
//
// When a contract address is configured, settlement/chain sends every
// mutation to the invoice contract and waits for it to be mined. Use
// settlement.DetectMode to choose between the two from configuration.
//
// # Errors
//
// Every backend reports the same sentinel errors (ErrInvalidAmount,
// ErrInvoiceAlreadyPaid, ErrInsufficientBalance and so on). Validation errors
// are final. Only ErrBackendUnavailable is retryable, and a mutation that
// failed that way may still have committed: re-read before resubmitting.
package paylink

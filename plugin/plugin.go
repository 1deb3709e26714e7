// Package plugin provides an extensible plugin system for Paylink.
// Plugins can hook into ledger lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called after an invoice is committed.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice, rcpt settlement.Receipt) error
}

// OnInvoicePaid is called after a payment and its balance credit are committed.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, rcpt settlement.Receipt) error
}

// OnPaymentFailed is called when a payment attempt fails.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, invID invoice.ID, payer common.Address, err error) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawal is called after a debit and its transfer are committed.
type OnWithdrawal interface {
	Plugin
	OnWithdrawal(ctx context.Context, w *balance.Withdrawal, rcpt settlement.Receipt) error
}

// OnWithdrawalFailed is called when a withdrawal fails.
type OnWithdrawalFailed interface {
	Plugin
	OnWithdrawalFailed(ctx context.Context, req balance.Request, err error) error
}

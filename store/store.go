// Package store defines the durable backing of the simulated settlement mode.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/types"
)

// Store is the unified storage interface for invoices and balances.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// SettleInvoice and Withdraw are the only balance writers and each is atomic:
// either every effect is visible or none is.
type Store interface {
	// Invoice methods

	// CreateInvoice inserts a new invoice. A duplicate ID fails with
	// paylink.ErrInvoiceExists and never overwrites.
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	// SettleInvoice marks the invoice paid and credits (merchant, token) by its
	// amount. It fails with ErrInvoiceNotFound, ErrInvoiceAlreadyPaid or
	// ErrInvoiceExpired, checked in that order against s.PaidAt.
	SettleInvoice(ctx context.Context, s invoice.Settlement) (*invoice.Invoice, error)

	// Balance methods

	// GetBalance returns zero for an unseen key.
	GetBalance(ctx context.Context, key balance.Key) (types.Amount, error)
	// Withdraw debits the balance and records w, or fails with
	// ErrInsufficientBalance and changes nothing.
	Withdraw(ctx context.Context, w *balance.Withdrawal) error
	ListWithdrawals(ctx context.Context, merchant common.Address, opts balance.ListOpts) ([]*balance.Withdrawal, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

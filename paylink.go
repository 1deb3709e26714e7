package paylink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/activity"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/plugin"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// salesWindow is the look-back of TodaysSales.
const salesWindow = 24 * time.Hour

// Engine is the invoice and balance ledger. It delegates every operation to
// the settlement Gateway chosen at startup and never holds ledger state of its
// own.
type Engine struct {
	gateway settlement.Gateway
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   types.Clock

	rejected []error // plugin registrations refused during New
}

// New creates a new Engine over gw.
func New(gw settlement.Gateway, opts ...Option) *Engine {
	e := &Engine{
		gateway: gw,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		clock:   types.SystemClock{},
	}

	for _, opt := range opts {
		opt(e)
	}
	for _, err := range e.rejected {
		e.logger.Warn("plugin registration failed", "error", err)
	}
	e.rejected = nil

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin. A refused registration, such as a
// duplicate name, is logged by New and the plugin is left out.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil {
			e.rejected = append(e.rejected, err)
		}
	}
}

// WithClock sets the clock used for sales windows. Gateways carry their own
// clock for creation and expiry.
func WithClock(c types.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// Start opens the gateway and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.gateway.Start(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("paylink started",
		"mode", e.gateway.Mode(),
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the gateway.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.gateway.Close()
}

// Mode reports which backend owns the ledger.
func (e *Engine) Mode() settlement.Mode { return e.gateway.Mode() }

// Ping checks the backend is reachable.
func (e *Engine) Ping(ctx context.Context) error { return e.gateway.Ping(ctx) }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

// CreateInvoice creates an unpaid invoice for d.Merchant.
func (e *Engine) CreateInvoice(ctx context.Context, d invoice.Draft) (*invoice.Invoice, settlement.Receipt, error) {
	inv, rcpt, err := e.gateway.CreateInvoice(ctx, d)
	if err != nil {
		e.logFailure("create invoice failed", err,
			"merchant", d.Merchant.Hex(),
			"token", d.Token,
		)
		return nil, settlement.Receipt{}, err
	}

	e.logger.Info("invoice created",
		"invoice_id", inv.ID.Hex(),
		"merchant", inv.Merchant.Hex(),
		"token", inv.Token,
		"amount", inv.Amount.String(),
		"tx", rcpt.TxHash.Hex(),
	)
	e.plugins.EmitInvoiceCreated(ctx, inv, rcpt)
	return inv, rcpt, nil
}

// GetInvoice returns the invoice, or nil with no error if there is no record.
func (e *Engine) GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error) {
	inv, err := e.gateway.GetInvoice(ctx, invID)
	if errors.Is(err, ErrInvoiceNotFound) {
		return nil, nil //nolint:nilnil // absent is a valid outcome of a read
	}
	return inv, err
}

// PayInvoice pays the invoice as payer. Exactly one concurrent attempt on the
// same invoice succeeds; the rest fail with ErrInvoiceAlreadyPaid.
func (e *Engine) PayInvoice(ctx context.Context, invID invoice.ID, payer common.Address) (*invoice.Invoice, settlement.Receipt, error) {
	inv, rcpt, err := e.gateway.PayInvoice(ctx, invID, payer)
	if err != nil {
		e.logFailure("pay invoice failed", err,
			"invoice_id", invID.Hex(),
			"payer", payer.Hex(),
		)
		e.plugins.EmitPaymentFailed(ctx, invID, payer, err)
		return nil, settlement.Receipt{}, err
	}

	e.logger.Info("invoice paid",
		"invoice_id", inv.ID.Hex(),
		"merchant", inv.Merchant.Hex(),
		"payer", inv.Payer.Hex(),
		"token", inv.Token,
		"amount", inv.Amount.String(),
		"tx", rcpt.TxHash.Hex(),
	)
	e.plugins.EmitInvoicePaid(ctx, inv, rcpt)
	return inv, rcpt, nil
}

// ListInvoices returns merchant's invoices, newest first.
func (e *Engine) ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.gateway.ListInvoices(ctx, merchant, opts)
}

// ──────────────────────────────────────────────────
// Balances and withdrawals
// ──────────────────────────────────────────────────

// GetBalance returns merchant's withdrawable balance of sym, zero if unseen.
func (e *Engine) GetBalance(ctx context.Context, merchant common.Address, sym token.Symbol) (types.Amount, error) {
	return e.gateway.GetBalance(ctx, balance.Key{Merchant: merchant, Token: sym})
}

// Balances returns merchant's balance of every supported token.
func (e *Engine) Balances(ctx context.Context, merchant common.Address) ([]balance.Balance, error) {
	out := make([]balance.Balance, 0, len(token.Symbols))
	for _, sym := range token.Symbols {
		key := balance.Key{Merchant: merchant, Token: sym}
		amt, err := e.gateway.GetBalance(ctx, key)
		if errors.Is(err, ErrInvalidToken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, balance.Balance{Key: key, Amount: amt})
	}
	return out, nil
}

// Withdraw moves req.Amount from req.Merchant's balance to req.Recipient.
// req.Merchant must be the authenticated caller.
func (e *Engine) Withdraw(ctx context.Context, req balance.Request) (*balance.Withdrawal, settlement.Receipt, error) {
	w, rcpt, err := e.gateway.Withdraw(ctx, req)
	if err != nil {
		e.logFailure("withdrawal failed", err,
			"merchant", req.Merchant.Hex(),
			"token", req.Token,
			"amount", req.Amount.String(),
		)
		e.plugins.EmitWithdrawalFailed(ctx, req, err)
		return nil, settlement.Receipt{}, err
	}

	e.logger.Info("withdrawal completed",
		"withdrawal_id", w.ID.String(),
		"merchant", w.Merchant.Hex(),
		"recipient", w.Recipient.Hex(),
		"token", w.Token,
		"amount", w.Amount.String(),
		"tx", rcpt.TxHash.Hex(),
	)
	e.plugins.EmitWithdrawal(ctx, w, rcpt)
	return w, rcpt, nil
}

// ──────────────────────────────────────────────────
// Activity
// ──────────────────────────────────────────────────

// Activity returns merchant's event feed, newest first.
func (e *Engine) Activity(ctx context.Context, merchant common.Address, opts activity.ListOpts) ([]activity.Event, error) {
	return e.gateway.Activity(ctx, merchant, opts)
}

// SalesSince sums merchant's invoices per token paid after since.
func (e *Engine) SalesSince(ctx context.Context, merchant common.Address, since int64) (map[token.Symbol]types.Amount, error) {
	events, err := e.gateway.Activity(ctx, merchant, activity.ListOpts{Since: since})
	if err != nil {
		return nil, err
	}
	return activity.Sales(events, since), nil
}

// TodaysSales sums merchant's paid invoices per token over the last 24 hours.
func (e *Engine) TodaysSales(ctx context.Context, merchant common.Address) (map[token.Symbol]types.Amount, error) {
	return e.SalesSince(ctx, merchant, e.clock.Now()-int64(salesWindow/time.Second))
}

func (e *Engine) logFailure(msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	switch {
	case IsValidation(err), errors.Is(err, ErrRejected):
		e.logger.Debug(msg, attrs...)
	case IsRetryable(err):
		e.logger.Warn(msg, attrs...)
	default:
		e.logger.Error(msg, attrs...)
	}
}

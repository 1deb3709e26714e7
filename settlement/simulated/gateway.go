// Package simulated implements the settlement Gateway against a local store.
//
// It applies the same rules and reports the same errors as the authoritative
// engine. Payments are serialized per invoice and withdrawals per
// (merchant, token) with an in-process key lock, on top of the store's own
// atomic primitives. Invoice identifiers and receipts are 256-bit values from
// a cryptographically secure source.
package simulated

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/activity"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
	"github.com/xraph/paylink/store"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

var _ settlement.Gateway = (*Gateway)(nil)

// maxIDAttempts bounds invoice id regeneration after a collision.
const maxIDAttempts = 4

// Gateway is the simulated-mode settlement backend.
type Gateway struct {
	store   store.Store
	tokens  *token.Registry
	clock   types.Clock
	random  io.Reader
	latency time.Duration
	migrate bool
	locks   *keyLock
	logger  *slog.Logger
}

// New creates a Gateway that owns s. Closing the Gateway closes s.
func New(s store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:   s,
		tokens:  token.NewRegistry(),
		clock:   types.SystemClock{},
		random:  rand.Reader,
		migrate: true,
		locks:   newKeyLock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode implements settlement.Gateway.
func (g *Gateway) Mode() settlement.Mode { return settlement.ModeSimulated }

// Start runs store migrations unless disabled.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.migrate {
		return nil
	}
	if err := g.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", paylink.ErrMigrationFailed, err)
	}
	return nil
}

// Ping implements settlement.Gateway.
func (g *Gateway) Ping(ctx context.Context) error {
	return backendErr(g.store.Ping(ctx))
}

// Close implements settlement.Gateway.
func (g *Gateway) Close() error { return g.store.Close() }

// CreateInvoice implements settlement.Gateway.
func (g *Gateway) CreateInvoice(ctx context.Context, d invoice.Draft) (*invoice.Invoice, settlement.Receipt, error) {
	if err := paylink.ValidateDraft(g.tokens, d); err != nil {
		return nil, settlement.Receipt{}, err
	}
	if err := g.delay(ctx); err != nil {
		return nil, settlement.Receipt{}, err
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		invID, err := g.randomHash()
		if err != nil {
			return nil, settlement.Receipt{}, err
		}
		inv := &invoice.Invoice{
			ID:        invID,
			Merchant:  d.Merchant,
			Token:     d.Token,
			Amount:    d.Amount,
			Note:      d.Note,
			CreatedAt: g.clock.Now(),
			ExpiresAt: d.ExpiresAt,
		}
		err = g.store.CreateInvoice(ctx, inv)
		if errors.Is(err, paylink.ErrInvoiceExists) {
			g.logger.Warn("simulated: invoice id collision, regenerating",
				"invoice_id", invID.Hex(),
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, settlement.Receipt{}, backendErr(err)
		}
		rcpt, err := g.receipt()
		if err != nil {
			return nil, settlement.Receipt{}, err
		}
		return inv, rcpt, nil
	}
	return nil, settlement.Receipt{}, fmt.Errorf("simulated: no unique invoice id after %d attempts: %w",
		maxIDAttempts, paylink.ErrInvoiceExists)
}

// GetInvoice implements settlement.Gateway.
func (g *Gateway) GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error) {
	inv, err := g.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, backendErr(err)
	}
	return inv, nil
}

// PayInvoice implements settlement.Gateway.
func (g *Gateway) PayInvoice(ctx context.Context, invID invoice.ID, payer common.Address) (*invoice.Invoice, settlement.Receipt, error) {
	if err := paylink.ValidatePayer(payer); err != nil {
		return nil, settlement.Receipt{}, err
	}
	if err := g.delay(ctx); err != nil {
		return nil, settlement.Receipt{}, err
	}

	unlock, err := g.locks.Lock(ctx, "invoice:"+invID.Hex())
	if err != nil {
		return nil, settlement.Receipt{}, err
	}
	defer unlock()

	inv, err := g.store.SettleInvoice(ctx, invoice.Settlement{
		InvoiceID: invID,
		Payer:     payer,
		PaidAt:    g.clock.Now(),
	})
	if err != nil {
		return nil, settlement.Receipt{}, backendErr(err)
	}
	rcpt, err := g.receipt()
	if err != nil {
		// The payment has committed; a receipt is informational.
		g.logger.Error("simulated: receipt generation failed", "invoice_id", invID.Hex(), "error", err)
	}
	return inv, rcpt, nil
}

// GetBalance implements settlement.Gateway.
func (g *Gateway) GetBalance(ctx context.Context, key balance.Key) (types.Amount, error) {
	if !g.tokens.Known(key.Token) {
		return types.Zero, fmt.Errorf("%w: %q", paylink.ErrInvalidToken, key.Token)
	}
	amt, err := g.store.GetBalance(ctx, key)
	if err != nil {
		return types.Zero, backendErr(err)
	}
	return amt, nil
}

// Withdraw implements settlement.Gateway.
func (g *Gateway) Withdraw(ctx context.Context, req balance.Request) (*balance.Withdrawal, settlement.Receipt, error) {
	if err := paylink.ValidateWithdrawal(g.tokens, req); err != nil {
		return nil, settlement.Receipt{}, err
	}
	if err := g.delay(ctx); err != nil {
		return nil, settlement.Receipt{}, err
	}

	unlock, err := g.locks.Lock(ctx, "balance:"+req.Key().String())
	if err != nil {
		return nil, settlement.Receipt{}, err
	}
	defer unlock()

	rcpt, err := g.receipt()
	if err != nil {
		return nil, settlement.Receipt{}, err
	}
	w := &balance.Withdrawal{
		ID:        id.NewWithdrawalID(),
		Merchant:  req.Merchant,
		Token:     req.Token,
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Receipt:   rcpt.TxHash,
		CreatedAt: g.clock.Now(),
	}
	if err := g.store.Withdraw(ctx, w); err != nil {
		return nil, settlement.Receipt{}, backendErr(err)
	}
	return w, rcpt, nil
}

// ListInvoices implements settlement.Gateway.
func (g *Gateway) ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	invs, err := g.store.ListInvoices(ctx, merchant, opts)
	if err != nil {
		return nil, backendErr(err)
	}
	return invs, nil
}

// Activity implements settlement.Gateway.
func (g *Gateway) Activity(ctx context.Context, merchant common.Address, opts activity.ListOpts) ([]activity.Event, error) {
	invs, err := g.store.ListInvoices(ctx, merchant, invoice.ListOpts{})
	if err != nil {
		return nil, backendErr(err)
	}
	ws, err := g.store.ListWithdrawals(ctx, merchant, balance.ListOpts{})
	if err != nil {
		return nil, backendErr(err)
	}
	return activity.FromRecords(invs, ws, opts), nil
}

// delay applies the configured artificial latency before any mutation, so an
// abandoned call never reaches the store.
func (g *Gateway) delay(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) randomHash() (common.Hash, error) {
	var h common.Hash
	for h == (common.Hash{}) {
		if _, err := io.ReadFull(g.random, h[:]); err != nil {
			return common.Hash{}, fmt.Errorf("simulated: random source: %w", err)
		}
	}
	return h, nil
}

func (g *Gateway) receipt() (settlement.Receipt, error) {
	h, err := g.randomHash()
	if err != nil {
		return settlement.Receipt{}, err
	}
	return settlement.Receipt{TxHash: h, Mode: settlement.ModeSimulated}, nil
}

// backendErr passes ledger errors and cancellation through and marks anything
// else from the store as a backend outage.
func backendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case paylink.IsValidation(err),
		errors.Is(err, paylink.ErrInvoiceExists),
		errors.Is(err, paylink.ErrBackendUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", paylink.ErrBackendUnavailable, err)
	}
}

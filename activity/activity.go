// Package activity builds a merchant's event feed: invoices created, invoices
// paid and withdrawals, newest first.
package activity

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Kind is the type of a feed event.
type Kind string

const (
	KindInvoiceCreated Kind = "invoice_created"
	KindInvoicePaid    Kind = "invoice_paid"
	KindWithdrawal     Kind = "withdrawal"
)

// Event is one entry of the feed. Counterparty is the payer of a paid invoice
// or the recipient of a withdrawal.
type Event struct {
	Kind         Kind           `json:"kind"`
	InvoiceID    invoice.ID     `json:"invoice_id,omitempty"`
	Merchant     common.Address `json:"merchant"`
	Counterparty common.Address `json:"counterparty,omitempty"`
	Token        token.Symbol   `json:"token"`
	Amount       types.Amount   `json:"amount"`
	Note         string         `json:"note,omitempty"`
	At           int64          `json:"at"`
	TxHash       common.Hash    `json:"tx_hash,omitempty"`
	BlockNumber  uint64         `json:"block_number,omitempty"`
}

// ListOpts bounds a feed query. Since is inclusive; zero means no bound.
type ListOpts struct {
	Since int64
	Limit int
}

// FromRecords derives the feed from stored invoices and withdrawals.
func FromRecords(invs []*invoice.Invoice, ws []*balance.Withdrawal, opts ListOpts) []Event {
	events := make([]Event, 0, len(invs)*2+len(ws))
	for _, inv := range invs {
		events = append(events, Event{
			Kind:      KindInvoiceCreated,
			InvoiceID: inv.ID,
			Merchant:  inv.Merchant,
			Token:     inv.Token,
			Amount:    inv.Amount,
			Note:      inv.Note,
			At:        inv.CreatedAt,
		})
		if inv.Paid {
			events = append(events, Event{
				Kind:         KindInvoicePaid,
				InvoiceID:    inv.ID,
				Merchant:     inv.Merchant,
				Counterparty: inv.Payer,
				Token:        inv.Token,
				Amount:       inv.Amount,
				At:           inv.PaidAt,
			})
		}
	}
	for _, w := range ws {
		events = append(events, Event{
			Kind:         KindWithdrawal,
			Merchant:     w.Merchant,
			Counterparty: w.Recipient,
			Token:        w.Token,
			Amount:       w.Amount,
			At:           w.CreatedAt,
			TxHash:       w.Receipt,
		})
	}
	return Apply(events, opts)
}

// Apply sorts events newest first, then filters by Since and truncates to Limit.
// Events with equal timestamps keep block order, then their input order.
func Apply(events []Event, opts ListOpts) []Event {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].At != events[j].At {
			return events[i].At > events[j].At
		}
		return events[i].BlockNumber > events[j].BlockNumber
	})

	out := events[:0]
	for _, e := range events {
		if opts.Since != 0 && e.At < opts.Since {
			continue
		}
		out = append(out, e)
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// Sales sums paid invoice amounts per token for payments strictly after
// since. A payment at exactly since falls outside the window.
func Sales(events []Event, since int64) map[token.Symbol]types.Amount {
	totals := make(map[token.Symbol]types.Amount, len(token.Symbols))
	for _, sym := range token.Symbols {
		totals[sym] = types.Zero
	}
	for _, e := range events {
		if e.Kind != KindInvoicePaid || e.At <= since {
			continue
		}
		totals[e.Token] = totals[e.Token].Add(e.Amount)
	}
	return totals
}

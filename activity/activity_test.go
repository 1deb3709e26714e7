package activity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

var (
	merchant = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	payer    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func records() ([]*invoice.Invoice, []*balance.Withdrawal) {
	invs := []*invoice.Invoice{
		{ID: common.Hash{1}, Merchant: merchant, Token: token.USDT, Amount: types.MustParseAmount("100"), CreatedAt: 100},
		{ID: common.Hash{2}, Merchant: merchant, Token: token.FDUSD, Amount: types.MustParseAmount("5"), CreatedAt: 200,
			Paid: true, Payer: payer, PaidAt: 300},
		{ID: common.Hash{3}, Merchant: merchant, Token: token.USDT, Amount: types.MustParseAmount("7"), CreatedAt: 250,
			Paid: true, Payer: payer, PaidAt: 400},
	}
	ws := []*balance.Withdrawal{
		{Merchant: merchant, Token: token.USDT, Amount: types.MustParseAmount("7"), Recipient: payer, CreatedAt: 500},
	}
	return invs, ws
}

func TestFromRecords(t *testing.T) {
	invs, ws := records()
	events := FromRecords(invs, ws, ListOpts{})

	wantKinds := []Kind{
		KindWithdrawal,     // 500
		KindInvoicePaid,    // 400
		KindInvoicePaid,    // 300
		KindInvoiceCreated, // 250
		KindInvoiceCreated, // 200
		KindInvoiceCreated, // 100
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d", len(events), len(wantKinds))
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Errorf("event %d: got %s, want %s", i, events[i].Kind, k)
		}
	}
	if events[1].Counterparty != payer {
		t.Errorf("paid event counterparty got %s, want payer", events[1].Counterparty.Hex())
	}
}

func TestApplySinceAndLimit(t *testing.T) {
	invs, ws := records()

	events := FromRecords(invs, ws, ListOpts{Since: 300})
	if len(events) != 3 {
		t.Fatalf("got %d events since 300, want 3", len(events))
	}

	events = FromRecords(invs, ws, ListOpts{Limit: 2})
	if len(events) != 2 || events[0].Kind != KindWithdrawal {
		t.Errorf("limit not applied to newest-first feed: %+v", events)
	}
}

func TestSales(t *testing.T) {
	invs, ws := records()
	events := FromRecords(invs, ws, ListOpts{})

	tests := []struct {
		name  string
		since int64
		usdt  string
		fdusd string
	}{
		{"all", 0, "7", "5"},
		{"just before first payment", 299, "7", "5"},
		{"at first payment", 300, "7", "0"},
		{"after first payment", 301, "7", "0"},
		{"at second payment", 400, "0", "0"},
		{"nothing", 1000, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sales(events, tt.since)
			if !got[token.USDT].Equal(types.MustParseAmount(tt.usdt)) {
				t.Errorf("USDT got %s, want %s", got[token.USDT], tt.usdt)
			}
			if !got[token.FDUSD].Equal(types.MustParseAmount(tt.fdusd)) {
				t.Errorf("FDUSD got %s, want %s", got[token.FDUSD], tt.fdusd)
			}
		})
	}
}

package postgres

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

func TestInvoiceModelConversion(t *testing.T) {
	inv := &invoice.Invoice{
		ID:        common.HexToHash("0x01"),
		Merchant:  common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Token:     token.USDT,
		Amount:    types.MustParseAmount("100"),
		CreatedAt: 10,
		Paid:      true,
		Payer:     common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		PaidAt:    20,
	}
	m := toInvoiceModel(inv)
	if m.Amount.UnitsString() != "100000000000000000000" {
		t.Errorf("got amount %s, want 100 whole tokens in base units", m.Amount.UnitsString())
	}

	back, err := fromInvoiceModel(m)
	if err != nil {
		t.Fatalf("from model failed: %v", err)
	}
	if back.ID != inv.ID || back.Payer != inv.Payer || back.PaidAt != inv.PaidAt {
		t.Errorf("got %+v, want %+v", back, inv)
	}
}

func TestFromInvoiceModelRejectsMalformedID(t *testing.T) {
	if _, err := fromInvoiceModel(&invoiceModel{ID: "nope"}); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestFromWithdrawalModel(t *testing.T) {
	wid := id.NewWithdrawalID()
	w, err := fromWithdrawalModel(&withdrawalModel{
		ID:        wid.String(),
		Merchant:  "0x00000000000000000000000000000000000000a1",
		Token:     "USDT",
		Amount:    types.Units(7),
		Recipient: "0x00000000000000000000000000000000000000c3",
		Receipt:   common.HexToHash("0xfeed").Hex(),
		CreatedAt: 5,
	})
	if err != nil {
		t.Fatalf("from model failed: %v", err)
	}
	if w.ID.String() != wid.String() {
		t.Errorf("got id %s, want %s", w.ID, wid)
	}
	if w.Token != token.USDT {
		t.Errorf("got token %s, want USDT", w.Token)
	}
	if w.Receipt != common.HexToHash("0xfeed") {
		t.Errorf("got receipt %s", w.Receipt.Hex())
	}
}

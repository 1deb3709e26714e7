package invoice

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestInvoiceCheck(t *testing.T) {
	tests := []struct {
		name string
		inv  Invoice
		now  int64
		want Refusal
	}{
		{"never expires", Invoice{ExpiresAt: 0}, 1 << 40, Payable},
		{"before expiry", Invoice{ExpiresAt: 100}, 99, Payable},
		{"at expiry", Invoice{ExpiresAt: 100}, 100, Payable},
		{"after expiry", Invoice{ExpiresAt: 100}, 101, RefusedExpired},
		{"paid wins over expired", Invoice{ExpiresAt: 100, Paid: true}, 500, RefusedAlreadyPaid},
		{"paid", Invoice{Paid: true}, 0, RefusedAlreadyPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inv.Check(tt.now); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvoiceSettle(t *testing.T) {
	payer := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	inv := &Invoice{}
	inv.Settle(Settlement{Payer: payer, PaidAt: 42})

	if !inv.Paid || inv.Payer != payer || inv.PaidAt != 42 {
		t.Errorf("settle did not set paid fields together: %+v", inv)
	}
}

func TestParseID(t *testing.T) {
	valid := "0x" + "ab000000000000000000000000000000000000000000000000000000000000cd"

	tests := []struct {
		input   string
		wantErr bool
	}{
		{valid, false},
		{"ab000000000000000000000000000000000000000000000000000000000000cd", true},
		{"0x1234", true},
		{"0x" + "zz000000000000000000000000000000000000000000000000000000000000cd", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Hex() != valid {
				t.Errorf("got %s, want %s", got.Hex(), valid)
			}
		})
	}
}

func TestStatusMatches(t *testing.T) {
	paid := &Invoice{Paid: true}
	unpaid := &Invoice{}

	if !StatusAny.Matches(paid) || !StatusAny.Matches(unpaid) {
		t.Error("StatusAny should match everything")
	}
	if !StatusPaid.Matches(paid) || StatusPaid.Matches(unpaid) {
		t.Error("StatusPaid mismatch")
	}
	if StatusUnpaid.Matches(paid) || !StatusUnpaid.Matches(unpaid) {
		t.Error("StatusUnpaid mismatch")
	}
}

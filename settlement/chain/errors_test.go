package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/xraph/paylink"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"insufficient balance", customRevert("InsufficientBalance"), paylink.ErrInsufficientBalance},
		{"invalid amount", customRevert("InvalidAmount"), paylink.ErrInvalidAmount},
		{"invalid recipient", customRevert("InvalidRecipient"), paylink.ErrInvalidRecipient},
		{"invalid token", customRevert("InvalidToken"), paylink.ErrInvalidToken},
		{"duplicate id", customRevert("InvoiceAlreadyExists"), paylink.ErrInvoiceExists},
		{"already paid", customRevert("InvoiceAlreadyPaid"), paylink.ErrInvoiceAlreadyPaid},
		{"expired", customRevert("InvoiceExpired"), paylink.ErrInvoiceExpired},
		{"not found", customRevert("InvoiceNotFound"), paylink.ErrInvoiceNotFound},
		{"wrapped revert", fmt.Errorf("estimate gas: %w", customRevert("InvoiceExpired")), paylink.ErrInvoiceExpired},
		{"string revert", revertError{data: errorStringData("ERC20: insufficient allowance")}, paylink.ErrRejected},
		{"unknown selector", revertError{data: "0xdeadbeef"}, paylink.ErrRejected},
		{"revert without data", errors.New("execution reverted"), paylink.ErrRejected},
		{"signer refused", bind.ErrNotAuthorized, paylink.ErrRejected},
		{"network", errors.New("dial tcp: connection refused"), paylink.ErrBackendUnavailable},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if classify(nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

func TestDecodeRevertReason(t *testing.T) {
	err, ok := decodeRevert(revertError{data: errorStringData("paused")})
	if !ok {
		t.Fatal("string revert not decoded")
	}
	if got := err.Error(); got != "paylink: rejected by caller: reverted: paused" {
		t.Errorf("got %q", got)
	}

	if _, ok := decodeRevert(revertError{data: "0x01"}); ok {
		t.Error("short data decoded")
	}
	if _, ok := decodeRevert(errors.New("plain")); ok {
		t.Error("error without data decoded")
	}
}

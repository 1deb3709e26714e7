package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/xraph/paylink"
)

// revertErrors maps contract custom errors onto the paylink taxonomy.
var revertErrors = map[string]error{
	"InsufficientBalance":  paylink.ErrInsufficientBalance,
	"InvalidAmount":        paylink.ErrInvalidAmount,
	"InvalidRecipient":     paylink.ErrInvalidRecipient,
	"InvalidToken":         paylink.ErrInvalidToken,
	"InvoiceAlreadyExists": paylink.ErrInvoiceExists,
	"InvoiceAlreadyPaid":   paylink.ErrInvoiceAlreadyPaid,
	"InvoiceExpired":       paylink.ErrInvoiceExpired,
	"InvoiceNotFound":      paylink.ErrInvoiceNotFound,
}

// errReverted marks a mined transaction whose receipt status is failure.
// Callers re-read state to name the cause.
var errReverted = errors.New("chain: transaction reverted")

// dataError is implemented by JSON-RPC errors that carry revert data.
type dataError interface {
	ErrorData() interface{}
}

// classify translates an error from a contract call or submission.
//
// Reverts become their taxonomy error, an unknown revert or a signer refusal
// becomes ErrRejected, cancellation passes through, and anything else is an
// unreachable or failing node.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, bind.ErrNotAuthorized) {
		return fmt.Errorf("%w: %w", paylink.ErrRejected, err)
	}
	if mapped, ok := decodeRevert(err); ok {
		return mapped
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return fmt.Errorf("%w: %w", paylink.ErrRejected, err)
	}
	return fmt.Errorf("%w: %w", paylink.ErrBackendUnavailable, err)
}

// decodeRevert reads revert data from err. It returns the mapped error for a
// known custom error, or ErrRejected carrying the reason of a string revert.
func decodeRevert(err error) (error, bool) {
	var de dataError
	if !errors.As(err, &de) {
		return nil, false
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return nil, false
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil || len(data) < 4 {
		return nil, false
	}

	for name, abiErr := range invoiceABI.Errors {
		if bytes.Equal(abiErr.ID[:4], data[:4]) {
			if mapped, ok := revertErrors[name]; ok {
				return mapped, true
			}
		}
	}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return fmt.Errorf("%w: reverted: %s", paylink.ErrRejected, reason), true
	}
	return fmt.Errorf("%w: reverted with data %s", paylink.ErrRejected, raw), true
}

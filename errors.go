package paylink

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for common failure scenarios. Every settlement backend
// reports failures with these values so callers never branch on mode.
var (
	// Input errors
	ErrInvalidAmount    = errors.New("paylink: invalid amount")
	ErrInvalidToken     = errors.New("paylink: invalid token")
	ErrInvalidRecipient = errors.New("paylink: invalid recipient")
	ErrInvalidAddress   = errors.New("paylink: invalid address")
	ErrInvalidExpiry    = errors.New("paylink: invalid expiry")

	// Invoice errors
	ErrInvoiceNotFound    = errors.New("paylink: invoice not found")
	ErrInvoiceAlreadyPaid = errors.New("paylink: invoice already paid")
	ErrInvoiceExpired     = errors.New("paylink: invoice expired")
	ErrInvoiceExists      = errors.New("paylink: invoice id already exists")

	// Balance errors
	ErrInsufficientBalance = errors.New("paylink: insufficient balance")

	// Backend errors
	ErrBackendUnavailable = errors.New("paylink: settlement backend unavailable")
	ErrRejected           = errors.New("paylink: rejected by caller")
	ErrUnauthorized       = errors.New("paylink: caller is not the engine signer")

	// Store errors
	ErrStoreClosed     = errors.New("paylink: store is closed")
	ErrMigrationFailed = errors.New("paylink: migration failed")
)

// PendingError reports a mutation that was submitted to the authoritative
// engine but not confirmed before the wait expired. It may still commit:
// re-query the invoice or balance before resubmitting.
type PendingError struct {
	TxHash common.Hash
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("paylink: transaction %s not confirmed: %v", e.TxHash.Hex(), e.Err)
}

// Unwrap lets errors.Is match ErrBackendUnavailable as well as the cause.
func (e *PendingError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound)
}

// IsValidation returns true for deterministic rejections. Retrying them cannot
// change the outcome.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidExpiry) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrInvoiceAlreadyPaid) ||
		errors.Is(err, ErrInvoiceExpired) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrUnauthorized)
}

// IsRetryable returns true if the error is temporary and the caller may retry
// with backoff. Paylink itself never retries a mutation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsPending reports whether err is a submitted but unconfirmed mutation and
// returns its transaction hash.
func IsPending(err error) (common.Hash, bool) {
	var pe *PendingError
	if errors.As(err, &pe) {
		return pe.TxHash, true
	}
	return common.Hash{}, false
}

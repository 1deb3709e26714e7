package paylink

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
)

// ValidateDraft checks the caller-supplied fields of a new invoice. Checks run
// in a fixed order and the first failure wins. An expiry in the past is
// accepted: expiry only matters at payment time.
func ValidateDraft(reg *token.Registry, d invoice.Draft) error {
	if d.Merchant == (common.Address{}) {
		return fmt.Errorf("%w: merchant is the zero address", ErrInvalidAddress)
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, d.Amount)
	}
	if _, err := reg.Resolve(d.Token); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidToken, d.Token)
	}
	if d.ExpiresAt < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidExpiry, d.ExpiresAt)
	}
	return nil
}

// ValidatePayer checks the payer identity of a payment.
func ValidatePayer(payer common.Address) error {
	if payer == (common.Address{}) {
		return fmt.Errorf("%w: payer is the zero address", ErrInvalidAddress)
	}
	return nil
}

// ValidateWithdrawal checks a withdrawal request before any balance is read.
func ValidateWithdrawal(reg *token.Registry, req balance.Request) error {
	if req.Merchant == (common.Address{}) {
		return fmt.Errorf("%w: merchant is the zero address", ErrInvalidAddress)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, req.Amount)
	}
	if req.Recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient is the zero address", ErrInvalidRecipient)
	}
	if _, err := reg.Resolve(req.Token); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidToken, req.Token)
	}
	return nil
}

// ParseAddress parses a 0x-prefixed hex address, rejecting malformed input and
// the zero address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}

package paylink

import (
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Symbol is re-exported from token package.
type Symbol = token.Symbol

// Re-export token symbols
const (
	USDT  = token.USDT
	FDUSD = token.FDUSD
)

// Re-export Amount constructors
var (
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	Zero            = types.Zero
	Sum             = types.Sum
)

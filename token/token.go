// Package token is the registry of settlement tokens Paylink accepts.
//
// The set of symbols is closed: USDT and FDUSD. A Registry maps each symbol to
// its address in the settlement domain; it holds no other state.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Symbol identifies a settlement token.
type Symbol string

// Supported symbols.
const (
	USDT  Symbol = "USDT"
	FDUSD Symbol = "FDUSD"
)

// Symbols lists every supported symbol in display order.
var Symbols = []Symbol{USDT, FDUSD}

// Decimals is the precision shared by every supported token.
const Decimals = 18

// Default BSC testnet deployments.
var (
	DefaultUSDTAddress  = common.HexToAddress("0x337610d27c682E347C9cD60BD4b3b107C9d34dDd")
	DefaultFDUSDAddress = common.HexToAddress("0x7c9e73d4C71dae564d41F78d56439bB4ba87592f")
)

// ErrUnknown is returned when a symbol or address is not in the registry.
var ErrUnknown = errors.New("token: unknown token")

// ParseSymbol normalizes s (case-insensitive) into a supported Symbol.
func ParseSymbol(s string) (Symbol, error) {
	sym := Symbol(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Symbols {
		if sym == known {
			return sym, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, s)
}

// String implements fmt.Stringer.
func (s Symbol) String() string { return string(s) }

// Registry maps symbols to settlement addresses.
type Registry struct {
	addrs map[Symbol]common.Address
}

// Option configures a Registry.
type Option func(*Registry)

// WithAddress overrides the address of sym.
func WithAddress(sym Symbol, addr common.Address) Option {
	return func(r *Registry) {
		r.addrs[sym] = addr
	}
}

// NewRegistry creates a Registry with the default addresses and any overrides.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		addrs: map[Symbol]common.Address{
			USDT:  DefaultUSDTAddress,
			FDUSD: DefaultFDUSDAddress,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the settlement address of sym. Unknown symbols and symbols
// configured with the zero address do not resolve.
func (r *Registry) Resolve(sym Symbol) (common.Address, error) {
	addr, ok := r.addrs[sym]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknown, sym)
	}
	return addr, nil
}

// SymbolFor is the reverse lookup of Resolve.
func (r *Registry) SymbolFor(addr common.Address) (Symbol, error) {
	if addr == (common.Address{}) {
		return "", fmt.Errorf("%w: zero address", ErrUnknown)
	}
	for sym, a := range r.addrs {
		if a == addr {
			return sym, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknown, addr.Hex())
}

// Known reports whether sym resolves.
func (r *Registry) Known(sym Symbol) bool {
	_, err := r.Resolve(sym)
	return err == nil
}

// List returns the resolvable symbols in display order.
func (r *Registry) List() []Symbol {
	out := make([]Symbol, 0, len(Symbols))
	for _, sym := range Symbols {
		if r.Known(sym) {
			out = append(out, sym)
		}
	}
	return out
}

// Package chain defines built-in address parameters for currencies the pool
// commonly pays out. Presets seed per-currency configuration defaults; values
// set explicitly in the configuration always win.
package chain

import "sort"

// AddressScheme selects how payout addresses for a currency are validated.
type AddressScheme string

const (
	// SchemeVersions accepts base58check addresses whose version byte is in
	// the currency's accepted set.
	SchemeVersions AddressScheme = "versions"

	// SchemeBech32 accepts everything SchemeVersions does, plus native
	// segwit addresses under the currency's bech32 prefix.
	SchemeBech32 AddressScheme = "bech32"

	// SchemeEVM accepts 0x-prefixed hex account addresses.
	SchemeEVM AddressScheme = "evm"
)

// Params contains the address parameters for one currency.
type Params struct {
	Symbol string // BTC, LTC, DOGE, etc.
	Name   string // Bitcoin, Litecoin, etc.

	// Scheme is the default validation scheme for payout addresses.
	Scheme AddressScheme

	// AddressVersions lists the base58check version bytes accepted for
	// payout addresses. Empty for EVM currencies.
	AddressVersions []byte

	// Network params (base58/bech32 currencies)
	PubKeyHashAddrID byte   // Address prefix for P2PKH
	ScriptHashAddrID byte   // Address prefix for P2SH
	Bech32HRP        string // Bech32 human-readable prefix, empty if unsupported
}

// Registry holds all built-in currency parameters indexed by symbol.
var registry = make(map[string]*Params)

// Register adds currency params to the registry.
func Register(symbol string, params *Params) {
	registry[symbol] = params
}

// Get returns the built-in params for a currency symbol.
func Get(symbol string) (*Params, bool) {
	params, ok := registry[symbol]
	return params, ok
}

// List returns all registered currency symbols in sorted order.
func List() []string {
	symbols := make([]string, 0, len(registry))
	for symbol := range registry {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// IsSupported returns true if the currency has built-in params.
func IsSupported(symbol string) bool {
	_, ok := registry[symbol]
	return ok
}

package wallet

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"github.com/poolhand/payoutd/internal/chain"
)

// Validator checks payout addresses for one currency. Validation is the
// last line before an address enters the payout database, so unknown
// shapes are rejected rather than assumed fine.
type Validator struct {
	scheme   chain.AddressScheme
	versions map[byte]bool
	params   *chaincfg.Params // segwit decode params, nil without an HRP
}

// NewValidator builds a validator. versions lists the accepted base58check
// version bytes; preset supplies the segwit prefix for the bech32 scheme
// and may be nil.
func NewValidator(scheme chain.AddressScheme, versions []byte, preset *chain.Params) *Validator {
	v := &Validator{
		scheme:   scheme,
		versions: make(map[byte]bool, len(versions)),
	}
	for _, ver := range versions {
		v.versions[ver] = true
	}

	if scheme == chain.SchemeBech32 && preset != nil && preset.Bech32HRP != "" {
		v.params = &chaincfg.Params{
			Name:             preset.Symbol,
			Bech32HRPSegwit:  preset.Bech32HRP,
			PubKeyHashAddrID: preset.PubKeyHashAddrID,
			ScriptHashAddrID: preset.ScriptHashAddrID,
		}
	}

	return v
}

// Valid reports whether address is acceptable for this currency.
func (v *Validator) Valid(address string) bool {
	if address == "" {
		return false
	}

	switch v.scheme {
	case chain.SchemeEVM:
		return validEVM(address)
	case chain.SchemeBech32:
		return v.validVersion(address) || v.validSegwit(address)
	default:
		return v.validVersion(address)
	}
}

func (v *Validator) validVersion(address string) bool {
	_, version, err := base58.CheckDecode(address)
	if err != nil {
		return false
	}
	return v.versions[version]
}

func (v *Validator) validSegwit(address string) bool {
	if v.params == nil {
		return false
	}

	decoded, err := btcutil.DecodeAddress(address, v.params)
	if err != nil {
		return false
	}
	switch decoded.(type) {
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash, *btcutil.AddressTaproot:
		return true
	default:
		// Base58 shapes already had their turn against the version set.
		return false
	}
}

// validEVM accepts 0x-prefixed hex addresses. Mixed-case addresses must
// carry a correct EIP-55 checksum; single-case ones have no checksum to
// check.
func validEVM(address string) bool {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return false
	}
	if !common.IsHexAddress(address) {
		return false
	}

	hexPart := strings.TrimPrefix(address, "0x")
	hexPart = strings.TrimPrefix(hexPart, "0X")
	lower := strings.ToLower(hexPart)
	upper := strings.ToUpper(hexPart)
	if hexPart == lower || hexPart == upper {
		return true
	}

	return common.HexToAddress(address).Hex() == "0x"+hexPart
}

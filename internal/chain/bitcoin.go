package chain

func init() {
	Register("BTC", &Params{
		Symbol: "BTC",
		Name:   "Bitcoin",
		Scheme: SchemeBech32,

		// Legacy (1...) and script hash (3...) payouts stay accepted.
		AddressVersions: []byte{0x00, 0x05},

		PubKeyHashAddrID: 0x00, // 1...
		ScriptHashAddrID: 0x05, // 3...
		Bech32HRP:        "bc",
	})
}

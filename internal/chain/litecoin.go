package chain

func init() {
	Register("LTC", &Params{
		Symbol: "LTC",
		Name:   "Litecoin",
		Scheme: SchemeBech32,

		AddressVersions: []byte{0x30, 0x32},

		PubKeyHashAddrID: 0x30, // L...
		ScriptHashAddrID: 0x32, // M...
		Bech32HRP:        "ltc",
	})
}

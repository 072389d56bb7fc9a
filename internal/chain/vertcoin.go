package chain

func init() {
	Register("VTC", &Params{
		Symbol: "VTC",
		Name:   "Vertcoin",
		Scheme: SchemeBech32,

		AddressVersions: []byte{0x47, 0x05},

		PubKeyHashAddrID: 0x47, // V...
		ScriptHashAddrID: 0x05, // 3...
		Bech32HRP:        "vtc",
	})
}

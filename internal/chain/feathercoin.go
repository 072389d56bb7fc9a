package chain

func init() {
	Register("FTC", &Params{
		Symbol: "FTC",
		Name:   "Feathercoin",
		Scheme: SchemeVersions,

		AddressVersions: []byte{0x0E, 0x05},

		PubKeyHashAddrID: 0x0E, // 6... or 7...
		ScriptHashAddrID: 0x05, // 3...
		Bech32HRP:        "fc",
	})
}

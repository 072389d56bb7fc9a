package chain

func init() {
	Register("DOGE", &Params{
		Symbol: "DOGE",
		Name:   "Dogecoin",
		Scheme: SchemeVersions, // no segwit

		AddressVersions: []byte{0x1E, 0x16},

		PubKeyHashAddrID: 0x1E, // D...
		ScriptHashAddrID: 0x16, // 9... or A...
	})
}

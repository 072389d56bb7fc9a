package chain

func init() {
	Register("ETH", &Params{
		Symbol: "ETH",
		Name:   "Ethereum",
		Scheme: SchemeEVM,
	})
}

package types

// Network identifies the ledger the gateway reads receipts from. The
// gateway is single-ledger per deployment; the identifier is echoed in
// challenges so payers know where to settle.
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkPolygon     Network = "polygon"
)

var networkChainIDs = map[Network]uint64{
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkPolygon:     137,
}

// ChainID returns the EVM chain id for the network, or 0 when unknown.
func (n Network) ChainID() uint64 {
	return networkChainIDs[n]
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia
}

func (n Network) String() string {
	return string(n)
}

package common

// ChainID identifies a supported network by the canonical name the settlement
// service uses in its routes.
type ChainID string

const (
	Ethereum ChainID = "ethereum"
	Arbitrum ChainID = "arbitrum"
	Base     ChainID = "base"
	Sui      ChainID = "sui"
	Tezos    ChainID = "tezos"
)

// AssetStandard tags the token standard an Asset follows on its chain.
type AssetStandard string

const (
	StandardNative  AssetStandard = "NATIVE"
	StandardERC20   AssetStandard = "ERC20"
	StandardSuiCoin AssetStandard = "SUI_COIN"
	StandardFA2     AssetStandard = "FA2"
)

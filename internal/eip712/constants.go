package eip712

import "github.com/ethereum/go-ethereum/signer/core/apitypes"

const (
	SwapOrderTypeDataName    = "Unite Cross-Chain Swap"
	SwapOrderTypeDataVersion = "1"
)

// EIP712Domain defines the EIP712 domain type structure
var EIP712Domain = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// SwapOrder defines the typed-data structure a maker signs for a swap order
var SwapOrder = []apitypes.Type{
	{Name: "maker", Type: "address"},
	{Name: "srcToken", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "minReturn", Type: "uint256"},
	{Name: "hashLock", Type: "bytes32"},
	{Name: "deadline", Type: "uint256"},
}

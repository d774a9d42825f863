package eip712

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

func sampleOrder() *common.Order {
	return &common.Order{
		Maker:     "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		SrcAsset:  common.Asset{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		Amount:    "1000000",
		MinReturn: "990000",
		HashLock:  "0x1f8b08000000000000ff0000000000000000000000000000000000000000dead",
		Deadline:  1900000000,
	}
}

func TestSwapOrderDigestIsDeterministic(t *testing.T) {
	contract := ethcommon.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")
	order := sampleOrder()

	first, err := SwapOrderDigest(1, contract, order)
	require.NoError(t, err)
	second, err := SwapOrderDigest(1, contract, order)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, ethcommon.Hash{}, first)
}

func TestSwapOrderDigestBindsDomainAndMessage(t *testing.T) {
	contract := ethcommon.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")
	order := sampleOrder()

	base, err := SwapOrderDigest(1, contract, order)
	require.NoError(t, err)

	otherChain, err := SwapOrderDigest(42161, contract, order)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherChain, "chain id must be part of the domain")

	otherContract, err := SwapOrderDigest(1, ethcommon.HexToAddress("0x2222222222222222222222222222222222222222"), order)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherContract, "verifying contract must be part of the domain")

	mutated := sampleOrder()
	mutated.Amount = "1000001"
	otherAmount, err := SwapOrderDigest(1, contract, mutated)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherAmount)
}

func TestBuildSwapOrderTypedDataShape(t *testing.T) {
	contract := ethcommon.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")
	typed := BuildSwapOrderTypedData(1, contract, sampleOrder())

	assert.Equal(t, "SwapOrder", typed.PrimaryType)
	assert.Equal(t, SwapOrderTypeDataName, typed.Domain.Name)
	assert.Equal(t, SwapOrderTypeDataVersion, typed.Domain.Version)
	assert.Contains(t, typed.Types, "SwapOrder")
	assert.Contains(t, typed.Types, "EIP712Domain")
}

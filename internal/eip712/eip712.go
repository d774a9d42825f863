// Package eip712 builds and hashes the typed data an EVM maker signs to
// authorize a cross-chain swap order.
package eip712

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

// BuildSwapOrderTypedData constructs the EIP712 typed data for a swap order.
func BuildSwapOrderTypedData(chainID int64, verifyingContract ethcommon.Address, order *common.Order) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": EIP712Domain,
			"SwapOrder":    SwapOrder,
		},
		PrimaryType: "SwapOrder",
		Domain: apitypes.TypedDataDomain{
			Name:              SwapOrderTypeDataName,
			Version:           SwapOrderTypeDataVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"maker":     order.Maker,
			"srcToken":  order.SrcAsset.Address,
			"amount":    order.Amount,
			"minReturn": order.MinReturn,
			"hashLock":  order.HashLock,
			"deadline":  fmt.Sprintf("%d", order.Deadline),
		},
	}
}

// SwapOrderDigest computes the EIP712 hash the maker signs for an order.
func SwapOrderDigest(chainID int64, verifyingContract ethcommon.Address, order *common.Order) (ethcommon.Hash, error) {
	typedData := BuildSwapOrderTypedData(chainID, verifyingContract, order)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to compute EIP712 hash: %w", err)
	}
	return ethcommon.BytesToHash(hash), nil
}

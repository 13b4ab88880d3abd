// Package ctf derives conditional-token position ids for binary markets.
package ctf

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Index sets of the two outcome slots of a binary condition.
const (
	YesIndexSet = 1
	NoIndexSet  = 2
)

// CollectionID is keccak256(parent ‖ condition ‖ uint256(indexSet)).
func CollectionID(parent, condition common.Hash, indexSet uint64) common.Hash {
	set := common.BigToHash(new(big.Int).SetUint64(indexSet))
	return crypto.Keccak256Hash(parent.Bytes(), condition.Bytes(), set.Bytes())
}

// PositionID is keccak256(collateral ‖ collectionId), read as a uint256.
func PositionID(collateral common.Address, collection common.Hash) *big.Int {
	return new(big.Int).SetBytes(crypto.Keccak256(collateral.Bytes(), collection.Bytes()))
}

// OutcomeTokens holds the YES and NO position ids of a condition.
type OutcomeTokens struct {
	Yes *big.Int
	No  *big.Int
}

// BinaryTokens derives both outcome token ids for a top-level condition.
func BinaryTokens(collateral common.Address, condition common.Hash) OutcomeTokens {
	var root common.Hash
	return OutcomeTokens{
		Yes: PositionID(collateral, CollectionID(root, condition, YesIndexSet)),
		No:  PositionID(collateral, CollectionID(root, condition, NoIndexSet)),
	}
}

// ParseConditionID accepts a 0x-prefixed 32-byte hex condition id.
func ParseConditionID(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), "0x") || len(s) != 66 {
		return common.Hash{}, fmt.Errorf("invalid condition id %q", s)
	}
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid condition id %q", s)
	}
	return common.BytesToHash(b), nil
}

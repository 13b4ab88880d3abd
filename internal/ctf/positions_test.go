package ctf

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionIDPacksIndexSetAsUint256(t *testing.T) {
	condition := common.HexToHash("0x1234")
	var root common.Hash

	buf := make([]byte, 0, 96)
	buf = append(buf, root.Bytes()...)
	buf = append(buf, condition.Bytes()...)
	buf = append(buf, make([]byte, 31)...)
	buf = append(buf, 1)

	assert.Equal(t, crypto.Keccak256Hash(buf), CollectionID(root, condition, YesIndexSet))
	assert.NotEqual(t, CollectionID(root, condition, YesIndexSet), CollectionID(root, condition, NoIndexSet))
}

func TestPositionIDPacksCollateralAs20Bytes(t *testing.T) {
	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	collection := common.HexToHash("0xabcd")

	buf := append(append([]byte{}, collateral.Bytes()...), collection.Bytes()...)
	require.Len(t, buf, 52)
	want := new(big.Int).SetBytes(crypto.Keccak256(buf))

	assert.Equal(t, 0, want.Cmp(PositionID(collateral, collection)))
}

func TestBinaryTokensAreDistinctAndStable(t *testing.T) {
	collateral := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	condition, err := ParseConditionID("0xab" + strings.Repeat("0", 62))
	require.NoError(t, err)

	a := BinaryTokens(collateral, condition)
	b := BinaryTokens(collateral, condition)
	assert.Equal(t, 0, a.Yes.Cmp(b.Yes))
	assert.Equal(t, 0, a.No.Cmp(b.No))
	assert.NotEqual(t, 0, a.Yes.Cmp(a.No))
}

func TestParseConditionIDRejectsBadInput(t *testing.T) {
	for _, bad := range []string{"", "0x12", "1234", "0x" + string(make([]byte, 64))} {
		_, err := ParseConditionID(bad)
		assert.Error(t, err, bad)
	}
}

package exchange

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeTape/internal/model"
)

const yesTokenDecimal = "21742633143463906290569050155826241533067272736897614950488156847949938836455"

func yesTokenID(t *testing.T) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(yesTokenDecimal, 10)
	require.True(t, ok)
	return v
}

func mustVariant(t *testing.T, key string) Variant {
	t.Helper()
	variants, err := Catalog()
	require.NoError(t, err)
	for _, v := range variants {
		if v.Key == key {
			return v
		}
	}
	t.Fatalf("variant %s not in catalog", key)
	return Variant{}
}

// fillValues returns a value for every input of v, using the given asset ids and amounts.
func fillValues(v Variant, makerAsset, takerAsset, makerAmount, takerAmount *big.Int) map[string]interface{} {
	values := map[string]interface{}{
		"context":           common.HexToHash("0xc0"),
		"orderHash":         common.HexToHash("0x0a"),
		"maker":             common.HexToAddress("0x1111111111111111111111111111111111111111"),
		"taker":             common.HexToAddress("0x2222222222222222222222222222222222222222"),
		"makerAssetId":      makerAsset,
		"takerAssetId":      takerAsset,
		"makerAmountFilled": makerAmount,
		"takerAmountFilled": takerAmount,
		"fee":               big.NewInt(0),
		"extra0":            big.NewInt(7),
		"extra1":            big.NewInt(8),
	}
	out := make(map[string]interface{}, len(v.Params))
	for _, p := range v.Params {
		out[p.Name] = values[p.Name]
	}
	return out
}

func buildLog(t *testing.T, v Variant, values map[string]interface{}) model.RawLog {
	t.Helper()
	event := v.Event()

	topics := []common.Hash{v.ID()}
	packed := make([]interface{}, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		val, ok := values[input.Name]
		require.True(t, ok, "missing value for %s", input.Name)
		if !input.Indexed {
			if h, ok := val.(common.Hash); ok {
				val = [32]byte(h)
			}
			packed = append(packed, val)
			continue
		}
		switch typed := val.(type) {
		case common.Hash:
			topics = append(topics, typed)
		case common.Address:
			topics = append(topics, common.BytesToHash(typed.Bytes()))
		case *big.Int:
			topics = append(topics, common.BigToHash(typed))
		default:
			t.Fatalf("unsupported indexed value %T", val)
		}
	}

	data, err := event.Inputs.NonIndexed().Pack(packed...)
	require.NoError(t, err)

	return model.RawLog{
		Address:     common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
		Topics:      topics,
		Data:        data,
		BlockNumber: 59311000,
		TxHash:      common.HexToHash("0xbeef"),
		LogIndex:    4,
	}
}

func TestCatalogHashesMatchCanonicalSignatures(t *testing.T) {
	variants, err := Catalog()
	require.NoError(t, err)
	require.NotEmpty(t, variants)

	for _, v := range variants {
		sig := CanonicalSignature(v.Name, v.Params)
		assert.Equal(t, sig, v.Signature(), v.Key)
		assert.Equal(t, crypto.Keccak256Hash([]byte(sig)), v.ID(), v.Key)
		assert.GreaterOrEqual(t, v.ArgCount(), 7, v.Key)
		assert.LessOrEqual(t, v.ArgCount(), 10, v.Key)
		assert.GreaterOrEqual(t, v.IndexedCount(), 2, v.Key)
		assert.LessOrEqual(t, v.IndexedCount(), 3, v.Key)
	}
}

func TestCatalogCanonicalOrderFilledHash(t *testing.T) {
	v := mustVariant(t, "order_filled")
	want := crypto.Keccak256Hash([]byte("OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"))
	assert.Equal(t, want, v.ID())

	// the 2-indexed shape hashes identically; only topic count separates them
	assert.Equal(t, v.ID(), mustVariant(t, "order_filled_taker_unindexed").ID())
}

func TestDecodeEveryVariant(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	for _, v := range decoder.Variants() {
		v := v
		t.Run(v.Key, func(t *testing.T) {
			log := buildLog(t, v, fillValues(v, big.NewInt(0), yesTokenID(t), big.NewInt(5_000_000), big.NewInt(10_000_000)))

			ev, err := decoder.Decode(log)
			require.NoError(t, err)
			assert.Equal(t, v.Key, ev.VariantKey)
			assert.Equal(t, v.Name, ev.EventName)
			assert.Equal(t, v.ArgCount(), ev.ArgCount)
			require.Len(t, ev.Args, v.ArgCount())

			fill, err := ExtractFill(ev)
			require.NoError(t, err)
			assert.Equal(t, 0, fill.MakerAssetID.Sign())
			assert.Equal(t, 0, fill.TakerAssetID.Cmp(yesTokenID(t)))
			assert.Equal(t, int64(5_000_000), fill.MakerAmount.Int64())
			assert.Equal(t, int64(10_000_000), fill.TakerAmount.Int64())
		})
	}
}

func TestDecodeArgumentTypes(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	v := mustVariant(t, "order_filled_context")
	log := buildLog(t, v, fillValues(v, big.NewInt(1), big.NewInt(0), big.NewInt(3), big.NewInt(4)))

	ev, err := decoder.Decode(log)
	require.NoError(t, err)

	assert.Equal(t, common.HexToHash("0xc0"), ev.Args[0])
	assert.Equal(t, common.HexToHash("0x0a"), ev.Args[1])
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), ev.Args[2])
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), ev.Args[3])
	_, isInt := ev.Args[4].(*big.Int)
	assert.True(t, isInt)
}

func TestDecodeSelectsVariantByTopicCount(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	indexed := mustVariant(t, "order_filled")
	unindexed := mustVariant(t, "order_filled_taker_unindexed")

	ev, err := decoder.Decode(buildLog(t, indexed, fillValues(indexed, big.NewInt(0), big.NewInt(9), big.NewInt(1), big.NewInt(2))))
	require.NoError(t, err)
	assert.Equal(t, indexed.Key, ev.VariantKey)

	ev, err = decoder.Decode(buildLog(t, unindexed, fillValues(unindexed, big.NewInt(0), big.NewInt(9), big.NewInt(1), big.NewInt(2))))
	require.NoError(t, err)
	assert.Equal(t, unindexed.Key, ev.VariantKey)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), ev.Args[2])

	assert.Len(t, decoder.Lookup(indexed.ID()), 2)
	assert.True(t, decoder.CanDecode(indexed.ID()))
}

func TestDecodeRejectsUnknownSignature(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	transfer := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	_, err = decoder.Decode(model.RawLog{Topics: []common.Hash{transfer, {}, {}}, Data: make([]byte, 32)})
	assert.True(t, errors.Is(err, ErrUnknownSignature))

	_, err = decoder.Decode(model.RawLog{})
	assert.True(t, errors.Is(err, ErrUnknownSignature))
	assert.False(t, decoder.CanDecode(transfer))
}

func TestDecodeRejectsMalformedLogs(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	v := mustVariant(t, "order_filled")
	good := buildLog(t, v, fillValues(v, big.NewInt(0), big.NewInt(9), big.NewInt(1), big.NewInt(2)))

	truncated := good
	truncated.Data = good.Data[:len(good.Data)-1]
	_, err = decoder.Decode(truncated)
	assert.True(t, errors.Is(err, ErrMalformedData), "truncated: %v", err)

	extended := good
	extended.Data = append(append([]byte{}, good.Data...), make([]byte, 32)...)
	_, err = decoder.Decode(extended)
	assert.True(t, errors.Is(err, ErrMalformedData), "extended: %v", err)

	noIndexed := good
	noIndexed.Topics = good.Topics[:1]
	_, err = decoder.Decode(noIndexed)
	assert.True(t, errors.Is(err, ErrMalformedData), "topics: %v", err)
}

func TestDecodedEventsAlwaysMatchOneVariant(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)
	variants := decoder.Variants()

	var logs []model.RawLog
	for _, v := range variants {
		base := buildLog(t, v, fillValues(v, big.NewInt(0), big.NewInt(5), big.NewInt(1), big.NewInt(2)))
		logs = append(logs, base)
		for cut := 0; cut <= len(base.Topics); cut++ {
			l := base
			l.Topics = base.Topics[:cut]
			logs = append(logs, l)
		}
		for _, size := range []int{0, 32, len(base.Data) - 32, len(base.Data) + 32} {
			if size < 0 {
				continue
			}
			l := base
			l.Data = make([]byte, size)
			logs = append(logs, l)
		}
	}

	for i, log := range logs {
		ev, err := decoder.Decode(log)
		if err != nil {
			assert.True(t, errors.Is(err, ErrUnknownSignature) || errors.Is(err, ErrMalformedData), "log %d: %v", i, err)
			continue
		}
		matches := 0
		for _, v := range variants {
			if v.Name == ev.EventName && v.ArgCount() == ev.ArgCount && v.IndexedCount() == len(log.Topics)-1 && v.ID() == log.Topics[0] {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "log %d decoded as %s", i, ev.VariantKey)
		assert.Len(t, ev.Args, ev.ArgCount)
	}
}

package indexer

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"tradeTape/internal/exchange"
	"tradeTape/internal/model"
	"tradeTape/internal/storage/sqlite"
)

var (
	testContract = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")
	testYesToken = big.NewInt(1111)
	testNoToken  = big.NewInt(2222)
)

// fakeChain serves logs and timestamps from memory.
type fakeChain struct {
	mu        sync.Mutex
	logs      []model.RawLog
	fail      map[uint64]error
	stamps    map[uint64]uint64
	head      uint64
	fetches   []Window
	stampHits int
}

func (f *fakeChain) FetchLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]model.RawLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, Window{From: from, To: to})
	if err, ok := f.fail[from]; ok {
		return nil, err
	}

	topics := make(map[common.Hash]struct{}, len(topic0))
	for _, t := range topic0 {
		topics[t] = struct{}{}
	}
	out := make([]model.RawLog, 0)
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if len(addresses) > 0 && lg.Address != addresses[0] {
			continue
		}
		if len(topics) > 0 {
			if _, ok := topics[lg.Topic0()]; !ok {
				continue
			}
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stampHits++
	if ts, ok := f.stamps[number]; ok {
		return ts, nil
	}
	return 0, fmt.Errorf("header %d not found", number)
}

func (f *fakeChain) LatestBlock(context.Context) (uint64, error) {
	return f.head, nil
}

// fillLog builds a canonical 8-arg OrderFilled log.
func fillLog(t *testing.T, block uint64, index uint, makerAsset, takerAsset *big.Int, makerAmount, takerAmount int64) model.RawLog {
	t.Helper()
	variants, err := exchange.Catalog()
	require.NoError(t, err)
	var v exchange.Variant
	for _, candidate := range variants {
		if candidate.Key == "order_filled" {
			v = candidate
		}
	}
	require.NotEmpty(t, v.Key)

	data, err := v.Event().Inputs.NonIndexed().Pack(
		makerAsset, takerAsset, big.NewInt(makerAmount), big.NewInt(takerAmount), big.NewInt(0),
	)
	require.NoError(t, err)

	return model.RawLog{
		Address: testContract,
		Topics: []common.Hash{
			v.ID(),
			common.HexToHash(fmt.Sprintf("0x%x", block*1000+uint64(index))),
			common.BytesToHash(common.HexToAddress("0x01").Bytes()),
			common.BytesToHash(common.HexToAddress("0x02").Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		LogIndex:    index,
	}
}

// buyYes is a maker-paid 0.5 fill of 10 YES tokens.
func buyYes(t *testing.T, block uint64, index uint) model.RawLog {
	return fillLog(t, block, index, big.NewInt(0), testYesToken, 5_000_000, 10_000_000)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tape.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedMarket(t *testing.T, store *sqlite.Store) model.Market {
	t.Helper()
	m, err := store.UpsertMarket(context.Background(), model.Market{
		Slug:        "test-market",
		ConditionID: "0xc0",
		YesTokenID:  testYesToken.String(),
		NoTokenID:   testNoToken.String(),
		Status:      "active",
	})
	require.NoError(t, err)
	return m
}

func newTestNormalizer(t *testing.T) *exchange.Normalizer {
	t.Helper()
	n, err := exchange.NewNormalizer(exchange.DefaultNormalizerConfig())
	require.NoError(t, err)
	return n
}

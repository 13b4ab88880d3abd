package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	mu        sync.Mutex
	logErrs   []error
	logs      []types.Log
	queries   []ethereum.FilterQuery
	headers   map[uint64]uint64
	headErr   error
	head      uint64
	logsCalls int
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logsCalls++
	f.queries = append(f.queries, q)
	if len(f.logErrs) > 0 {
		err := f.logErrs[0]
		f.logErrs = f.logErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.logs, nil
}

func (f *fakeBackend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	ts, ok := f.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Header{Number: number, Time: ts}, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func testOptions() Options {
	return Options{CallTimeout: time.Second, MaxAttempts: 3, RetryDelay: time.Millisecond}
}

func TestFetchLogsRetriesTransientErrors(t *testing.T) {
	backend := &fakeBackend{
		logErrs: []error{errors.New("429 Too Many Requests"), errors.New("connection reset by peer")},
		logs: []types.Log{
			{Address: common.HexToAddress("0x01"), Topics: []common.Hash{common.HexToHash("0xaa")}, BlockNumber: 10, Index: 2},
			{BlockNumber: 11, Removed: true},
		},
	}
	client := NewClient(backend, testOptions(), zaptest.NewLogger(t))

	logs, err := client.FetchLogs(context.Background(), 10, 59, []common.Address{common.HexToAddress("0x01")}, []common.Hash{common.HexToHash("0xaa")})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(10), logs[0].BlockNumber)
	assert.Equal(t, uint(2), logs[0].LogIndex)
	assert.Equal(t, uint64(3), client.Calls())

	q := backend.queries[0]
	assert.Equal(t, int64(10), q.FromBlock.Int64())
	assert.Equal(t, int64(59), q.ToBlock.Int64())
	assert.Equal(t, [][]common.Hash{{common.HexToHash("0xaa")}}, q.Topics)
}

func TestFetchLogsGivesUpAfterMaxAttempts(t *testing.T) {
	rateLimited := errors.New("rate limit exceeded")
	backend := &fakeBackend{logErrs: []error{rateLimited, rateLimited, rateLimited, rateLimited}}
	client := NewClient(backend, testOptions(), zaptest.NewLogger(t))

	_, err := client.FetchLogs(context.Background(), 1, 2, nil, nil)
	require.ErrorIs(t, err, rateLimited)
	assert.Equal(t, 3, backend.logsCalls)
}

func TestFetchLogsDoesNotRetryTerminalErrors(t *testing.T) {
	terminal := errors.New("invalid params: fromBlock > toBlock")
	backend := &fakeBackend{logErrs: []error{terminal}}
	client := NewClient(backend, testOptions(), zaptest.NewLogger(t))

	_, err := client.FetchLogs(context.Background(), 5, 1, nil, nil)
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, backend.logsCalls)
	assert.Equal(t, uint64(1), client.Calls())
}

func TestRetryStopsOnCancel(t *testing.T) {
	backend := &fakeBackend{logErrs: []error{errors.New("timeout"), errors.New("timeout")}}
	opts := testOptions()
	opts.RetryDelay = time.Hour
	client := NewClient(backend, opts, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.FetchLogs(ctx, 1, 2, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, backend.logsCalls)
}

func TestBlockTimestamp(t *testing.T) {
	backend := &fakeBackend{headers: map[uint64]uint64{100: 1_700_000_000}}
	client := NewClient(backend, testOptions(), zaptest.NewLogger(t))

	ts, err := client.BlockTimestamp(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_000), ts)

	_, err = client.BlockTimestamp(context.Background(), 101)
	require.ErrorIs(t, err, ethereum.NotFound)
	assert.Equal(t, uint64(2), client.Calls())
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func newRPCServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "upstream down", status)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x2a"}`, req.ID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialFallsBackToHealthyEndpoint(t *testing.T) {
	down := newRPCServer(t, http.StatusServiceUnavailable)
	up := newRPCServer(t, http.StatusOK)

	client, err := Dial(context.Background(), []string{down.URL, up.URL}, testOptions(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, up.URL, client.Endpoint())
	head, err := client.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), head)
}

func TestDialFailsWhenNoEndpointIsHealthy(t *testing.T) {
	down := newRPCServer(t, http.StatusBadGateway)

	_, err := Dial(context.Background(), []string{down.URL}, testOptions(), zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrNoHealthyEndpoint)

	_, err = Dial(context.Background(), nil, testOptions(), zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrNoHealthyEndpoint)
}

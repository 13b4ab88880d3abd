package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ingester's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rpcCalls           *prometheus.CounterVec
	rpcRetries         *prometheus.CounterVec
	logsFetched        prometheus.Counter
	decodeFailures     prometheus.Counter
	tradesInserted     prometheus.Counter
	chunksFailed       prometheus.Counter
	timestampFallbacks prometheus.Counter
	checkpointBlock    *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "trade_tape_rpc_calls_total",
				Help: "RPC calls issued, including retries",
			}, []string{"method"}),
			rpcRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "trade_tape_rpc_retries_total",
				Help: "RPC calls retried after a transient error",
			}, []string{"method"}),
			logsFetched: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "trade_tape_logs_fetched_total",
				Help: "Fill logs returned by eth_getLogs",
			}),
			decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "trade_tape_decode_failures_total",
				Help: "Logs skipped because they did not decode",
			}),
			tradesInserted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "trade_tape_trades_inserted_total",
				Help: "Trades newly written to the store",
			}),
			chunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "trade_tape_chunks_failed_total",
				Help: "Block windows whose log fetch failed",
			}),
			timestampFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "trade_tape_timestamp_fallbacks_total",
				Help: "Block timestamps replaced by wall-clock time",
			}),
			checkpointBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "trade_tape_checkpoint_block",
				Help: "Last committed block per sync key",
			}, []string{"key"}),
		}
		prometheus.MustRegister(
			metrics.rpcCalls,
			metrics.rpcRetries,
			metrics.logsFetched,
			metrics.decodeFailures,
			metrics.tradesInserted,
			metrics.chunksFailed,
			metrics.timestampFallbacks,
			metrics.checkpointBlock,
		)
	})
	return metrics
}

// RPCCall counts one attempt of method.
func (m *Metrics) RPCCall(method string) {
	if m != nil {
		m.rpcCalls.WithLabelValues(method).Inc()
	}
}

// RPCRetry counts one retry of method.
func (m *Metrics) RPCRetry(method string) {
	if m != nil {
		m.rpcRetries.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) LogsFetched(n int) {
	if m != nil && n > 0 {
		m.logsFetched.Add(float64(n))
	}
}

func (m *Metrics) DecodeFailure() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) TradesInserted(n int) {
	if m != nil && n > 0 {
		m.tradesInserted.Add(float64(n))
	}
}

func (m *Metrics) ChunkFailed() {
	if m != nil {
		m.chunksFailed.Inc()
	}
}

func (m *Metrics) TimestampFallback() {
	if m != nil {
		m.timestampFallbacks.Inc()
	}
}

// Checkpoint records the last committed block for key.
func (m *Metrics) Checkpoint(key string, block uint64) {
	if m != nil {
		m.checkpointBlock.WithLabelValues(key).Set(float64(block))
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

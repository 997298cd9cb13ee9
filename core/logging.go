// Health Logger: structured JSON logging to a rotating file plus a
// Prometheus registry of node-health gauges, following the same shape the
// teacher's health logger uses — just pointed at this node's chain index
// and mempool instead of a ledger/network/coin triple.
package core

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics captures a snapshot of node health statistics.
type Metrics struct {
	Height        uint64 `json:"height"`
	LastHash      string `json:"last_hash"`
	PendingTx     int    `json:"pending_tx"`
	BaseFee       uint64 `json:"base_fee"`
	MemAlloc      uint64 `json:"mem_alloc"`
	NumGoroutines int    `json:"goroutines"`
	Timestamp     int64  `json:"timestamp"`
}

// HealthLogger provides structured logging and Prometheus metrics for a
// running node.
type HealthLogger struct {
	index *ChainIndex
	pool  *Mempool
	fees  *FeeOracle

	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex

	registry        *prometheus.Registry
	heightGauge     prometheus.Gauge
	pendingTxGauge  prometheus.Gauge
	baseFeeGauge    prometheus.Gauge
	memAllocGauge   prometheus.Gauge
	goroutinesGauge prometheus.Gauge
	errorCounter    prometheus.Counter
}

// NewHealthLogger configures a HealthLogger writing JSON logs to path.
func NewHealthLogger(index *ChainIndex, pool *Mempool, fees *FeeOracle, path string) (*HealthLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})
	lg.SetOutput(f)
	reg := prometheus.NewRegistry()

	h := &HealthLogger{index: index, pool: pool, fees: fees, log: lg, file: f, registry: reg}

	h.heightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anvilzksync_block_height",
		Help: "Current block height of the node",
	})
	h.pendingTxGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anvilzksync_pending_transactions",
		Help: "Number of transactions waiting in the mempool",
	})
	h.baseFeeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anvilzksync_base_fee_per_gas",
		Help: "Current base fee per gas",
	})
	h.memAllocGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anvilzksync_mem_alloc_bytes",
		Help: "Current memory allocation in bytes",
	})
	h.goroutinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anvilzksync_goroutines",
		Help: "Number of running goroutines",
	})
	h.errorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anvilzksync_log_errors_total",
		Help: "Total number of error events logged",
	})

	reg.MustRegister(
		h.heightGauge,
		h.pendingTxGauge,
		h.baseFeeGauge,
		h.memAllocGauge,
		h.goroutinesGauge,
		h.errorCounter,
	)

	return h, nil
}

// Close releases the underlying log file.
func (h *HealthLogger) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

// Rotate switches logging to a new file path.
func (h *HealthLogger) Rotate(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.file.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	h.log.SetOutput(f)
	h.file = f
	return nil
}

// LogEvent records an arbitrary message with the specified log level.
func (h *HealthLogger) LogEvent(level logrus.Level, msg string) {
	h.mu.Lock()
	if level >= logrus.ErrorLevel {
		h.errorCounter.Inc()
	}
	h.log.Log(level, msg)
	h.mu.Unlock()
}

// MetricsSnapshot gathers current metrics from the chain index, mempool and
// runtime.
func (h *HealthLogger) MetricsSnapshot() Metrics {
	m := Metrics{Timestamp: time.Now().Unix(), NumGoroutines: runtime.NumGoroutine()}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.MemAlloc = mem.Alloc

	if h.index != nil {
		if head := h.index.Head(); head != nil {
			m.Height = head.Number
			m.LastHash = head.Hash.Hex()
		}
	}
	if h.pool != nil {
		m.PendingTx = h.pool.Len()
	}
	if h.fees != nil {
		m.BaseFee = h.fees.CurrentBaseFee().Uint64()
	}
	return m
}

// RecordMetrics captures the current snapshot and updates Prometheus gauges.
func (h *HealthLogger) RecordMetrics() {
	m := h.MetricsSnapshot()
	h.heightGauge.Set(float64(m.Height))
	h.pendingTxGauge.Set(float64(m.PendingTx))
	h.baseFeeGauge.Set(float64(m.BaseFee))
	h.memAllocGauge.Set(float64(m.MemAlloc))
	h.goroutinesGauge.Set(float64(m.NumGoroutines))
	h.LogEvent(logrus.InfoLevel, "metrics recorded")
}

// RunMetricsCollector periodically records metrics until the context is
// canceled.
func (h *HealthLogger) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.RecordMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// StartMetricsServer exposes a Prometheus metrics endpoint on addr.
func (h *HealthLogger) StartMetricsServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.LogEvent(logrus.ErrorLevel, err.Error())
		}
	}()
	return srv, nil
}

// ShutdownMetricsServer gracefully stops the metrics HTTP server.
func (h *HealthLogger) ShutdownMetricsServer(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}

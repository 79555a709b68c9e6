package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	bpOnce      sync.Once
	bpVec       *prometheus.HistogramVec
	failureOnce sync.Once
	failureVec  *prometheus.CounterVec
)

func businessVec() *prometheus.HistogramVec {
	bpOnce.Do(func() {
		bpVec = register(MetricsBusinessProcess, "", zap.NewNop().Sugar()).(*prometheus.HistogramVec)
	})
	return bpVec
}

func failures() *prometheus.CounterVec {
	failureOnce.Do(func() {
		failureVec = register(MetricsFailures, "", zap.NewNop().Sugar()).(*prometheus.CounterVec)
	})
	return failureVec
}

// ObserveBusinessProcess records the latency of a ledger operation, e.g.
// ("wallet", "debit") or ("unlock", "consume_karma").
func ObserveBusinessProcess(typ, subtype string, start time.Time) {
	businessVec().WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

// CountFailure counts an API call that failed with the given error kind.
func CountFailure(kind string) {
	failures().WithLabelValues(kind).Inc()
}

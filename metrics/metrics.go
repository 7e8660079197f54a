// Package metrics exposes Prometheus counters for the write path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	CommitsTotal     *prometheus.CounterVec
	ConflictsTotal   prometheus.Counter
	DataFilesWritten prometheus.Counter
	RowsWritten      prometheus.Counter
}

// New registers the engine's counters on the given registerer. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deltaforge_commits_total",
			Help: "Committed log versions by operation.",
		}, []string{"operation"}),
		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "deltaforge_commit_conflicts_total",
			Help: "Commits lost to a concurrent writer.",
		}),
		DataFilesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "deltaforge_data_files_written_total",
			Help: "Data files staged to storage.",
		}),
		RowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "deltaforge_rows_written_total",
			Help: "Rows encoded into data files.",
		}),
	}
}

// Serve exposes /metrics on addr. It blocks, so run it in a goroutine.
func Serve(addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}

package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/store"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	samples    *prometheus.CounterVec
	rejects    *prometheus.CounterVec
	duplicates prometheus.Counter
	runs       *prometheus.CounterVec
	phase      *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space",
			Name:      "samples_total",
			Help:      "Samples processed, by outcome.",
		}, []string{"outcome"}),
		rejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space",
			Name:      "rejected_samples_total",
			Help:      "Samples excluded from the golden table, by error category.",
		}, []string{"category"}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: "space",
			Name:      "duplicate_records_total",
			Help:      "Records collapsed into an earlier record with the same seq_hash.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "space",
			Name:      "runs_total",
			Help:      "Finished runs, by final status.",
		}, []string{"status"}),
		phase: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "space",
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each run phase.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"phase", "status"}),
	}
}

func (m *Metrics) observePhase(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.phase.WithLabelValues(name, status).Observe(d.Seconds())
}

func (m *Metrics) sample(outcome string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(outcome).Inc()
}

func (m *Metrics) reject(category string) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(category).Inc()
}

func (m *Metrics) finish(status string, duplicates int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.duplicates.Add(float64(duplicates))
}

// RunLister is the part of the run store the history collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// HistoryCollector reports the pipeline's run, reject and duplicate totals
// rebuilt from the run store on every scrape. It serves processes that do
// not run the pipeline themselves, such as the HTTP API, and must not share
// a registry with Metrics since the metric names are the same.
type HistoryCollector struct {
	runs    RunLister
	timeout time.Duration

	runsDesc       *prometheus.Desc
	rejectsDesc    *prometheus.Desc
	duplicatesDesc *prometheus.Desc
	writtenDesc    *prometheus.Desc
	upDesc         *prometheus.Desc
}

// historyPage is the ListRuns page size used while scraping.
const historyPage = 500

// NewHistoryCollector builds a collector over runs.
func NewHistoryCollector(runs RunLister) *HistoryCollector {
	return &HistoryCollector{
		runs:           runs,
		timeout:        10 * time.Second,
		runsDesc:       prometheus.NewDesc("space_runs_total", "Finished runs, by final status.", []string{"status"}, nil),
		rejectsDesc:    prometheus.NewDesc("space_rejected_samples_total", "Samples excluded from the golden table, by error category.", []string{"category"}, nil),
		duplicatesDesc: prometheus.NewDesc("space_duplicate_records_total", "Records collapsed into an earlier record with the same seq_hash.", nil, nil),
		writtenDesc:    prometheus.NewDesc("space_written_records_total", "Rows written to golden tables by completed runs.", nil, nil),
		upDesc:         prometheus.NewDesc("space_run_history_up", "Whether the last read of the run store succeeded.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *HistoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsDesc
	ch <- c.rejectsDesc
	ch <- c.duplicatesDesc
	ch <- c.writtenDesc
	ch <- c.upDesc
}

// Collect implements prometheus.Collector. Runs still in flight are not
// counted.
func (c *HistoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	runs, err := c.listAll(ctx)
	if err != nil {
		zap.L().Warn("pipeline: read run history for metrics", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 1)

	byStatus := map[model.RunStatus]float64{}
	byCategory := map[model.ErrorCategory]float64{}
	var duplicates, written float64
	for _, r := range runs {
		if r.Status != model.RunStatusComplete && r.Status != model.RunStatusFailed {
			continue
		}
		byStatus[r.Status]++
		if r.Result == nil || r.Result.Summary == nil {
			continue
		}
		s := r.Result.Summary
		duplicates += float64(s.Duplicates)
		written += float64(s.Written)
		for _, rej := range s.RejectedRecords {
			byCategory[rej.Category]++
		}
	}
	for status, n := range byStatus {
		ch <- prometheus.MustNewConstMetric(c.runsDesc, prometheus.CounterValue, n, string(status))
	}
	for category, n := range byCategory {
		ch <- prometheus.MustNewConstMetric(c.rejectsDesc, prometheus.CounterValue, n, string(category))
	}
	ch <- prometheus.MustNewConstMetric(c.duplicatesDesc, prometheus.CounterValue, duplicates)
	ch <- prometheus.MustNewConstMetric(c.writtenDesc, prometheus.CounterValue, written)
}

func (c *HistoryCollector) listAll(ctx context.Context) ([]model.Run, error) {
	var all []model.Run
	for offset := 0; ; offset += historyPage {
		page, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: historyPage, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < historyPage {
			return all, nil
		}
	}
}

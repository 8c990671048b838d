package metrics

import (
	"sync"

	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource reports the task stats of batches currently executing. The
// batch service implements it over its active-run table.
type StatsSource interface {
	ActiveBatchStats() map[string]domain.BatchStats
}

type batchCollector struct {
	source StatsSource

	activeDesc *prometheus.Desc
	tasksDesc  *prometheus.Desc
}

func newBatchCollector(source StatsSource) *batchCollector {
	return &batchCollector{
		source: source,
		activeDesc: prometheus.NewDesc(
			"flowbatch_batches_active",
			"Number of batches currently executing.",
			nil,
			nil,
		),
		tasksDesc: prometheus.NewDesc(
			"flowbatch_active_tasks",
			"Task counts across active batches by status.",
			[]string{"status"},
			nil,
		),
	}
}

func (c *batchCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDesc
	ch <- c.tasksDesc
}

func (c *batchCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	stats := c.source.ActiveBatchStats()

	var waiting, queued, done, failed int
	for _, st := range stats {
		waiting += st.Waiting
		queued += st.Queued
		done += st.Done
		failed += st.Failed
	}
	emitGauge(ch, c.activeDesc, float64(len(stats)))
	emitGauge(ch, c.tasksDesc, float64(waiting), "waiting")
	emitGauge(ch, c.tasksDesc, float64(queued), "queued")
	emitGauge(ch, c.tasksDesc, float64(done), "done")
	emitGauge(ch, c.tasksDesc, float64(failed), "failed")
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerBatchCollectorOnce sync.Once

func RegisterBatchCollector(source StatsSource) {
	registerBatchCollectorOnce.Do(func() {
		prometheus.MustRegister(newBatchCollector(source))
	})
}

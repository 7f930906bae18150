package bufferpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace = "bufferpool"
	labelPageSize   = "page_size"
	labelState      = "state"
)

type metrics struct {
	hits, misses, coalesced,
	reads, writes, refetches,
	ioFailures *prometheus.CounterVec
	evictions             *prometheus.CounterVec // by page size and clean/dirty state
	resident, freeBuffers *prometheus.GaugeVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      name,
			Help:      help,
		}, append([]string{labelPageSize}, labels...))
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      name,
			Help:      help,
		}, []string{labelPageSize})
	}
	m := &metrics{
		hits:        counter("hits_total", "Page requests satisfied by a resident page."),
		misses:      counter("misses_total", "Page requests that started a load."),
		coalesced:   counter("coalesced_total", "Page requests that joined a pending load."),
		reads:       counter("disk_reads_total", "Pages read through a resource."),
		writes:      counter("disk_writes_total", "Pages written back through a resource."),
		refetches:   counter("refetches_total", "Loads satisfied from the write-back queue."),
		ioFailures:  counter("io_failures_total", "Failed page reads and writes."),
		evictions:   counter("evictions_total", "Pages evicted to admit another.", labelState),
		resident:    gauge("resident_pages", "Pages held by the cache."),
		freeBuffers: gauge("free_buffers", "Buffers available for new pages."),
	}
	for _, collector := range []prometheus.Collector{
		m.hits, m.misses, m.coalesced,
		m.reads, m.writes, m.refetches,
		m.ioFailures, m.evictions,
		m.resident, m.freeBuffers,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// eviction records a victim leaving the cache.
func (m *metrics) eviction(size PageSize, dirty bool) {
	state := "clean"
	if dirty {
		state = "dirty"
	}
	m.evictions.WithLabelValues(size.String(), state).Inc()
}

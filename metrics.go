package fastpm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics are the consumer-side Prometheus metrics of a Monitor.
// A nil *MonitorMetrics is valid and records nothing.
type MonitorMetrics struct {
	Reads        prometheus.Counter
	EmptyReads   prometheus.Counter
	Skipped      prometheus.Counter
	LastSeq      prometheus.Gauge
	LastValue    prometheus.Gauge
	ForcedCloses prometheus.Counter
}

// NewMonitorMetrics creates the metrics and registers them with reg, if reg is not nil.
func NewMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	m := &MonitorMetrics{
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastpm",
			Subsystem: "monitor",
			Name:      "reads_total",
			Help:      "Total number of reads that returned a sample",
		}),
		EmptyReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastpm",
			Subsystem: "monitor",
			Name:      "empty_reads_total",
			Help:      "Total number of reads that found no new sample",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastpm",
			Subsystem: "monitor",
			Name:      "skipped_samples_total",
			Help:      "Total number of produced samples never delivered to the reader",
		}),
		LastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastpm",
			Subsystem: "monitor",
			Name:      "last_sequence",
			Help:      "Sequence number of the most recently delivered sample",
		}),
		LastValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastpm",
			Subsystem: "monitor",
			Name:      "last_value",
			Help:      "Value of the most recently delivered sample",
		}),
		ForcedCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastpm",
			Subsystem: "monitor",
			Name:      "forced_closes_total",
			Help:      "Total number of closes that had to terminate the producer",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Reads, m.EmptyReads, m.Skipped, m.LastSeq, m.LastValue, m.ForcedCloses)
	}
	return m
}

func (m *MonitorMetrics) observeRead(s Sample, skipped uint64) {
	if m == nil {
		return
	}
	m.Reads.Inc()
	m.Skipped.Add(float64(skipped))
	m.LastSeq.Set(float64(s.Seq))
	m.LastValue.Set(s.Value)
}

func (m *MonitorMetrics) observeEmpty() {
	if m == nil {
		return
	}
	m.EmptyReads.Inc()
}

func (m *MonitorMetrics) observeForcedClose() {
	if m == nil {
		return
	}
	m.ForcedCloses.Inc()
}

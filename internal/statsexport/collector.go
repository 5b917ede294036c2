package statsexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samfsd/samfs/internal/statsrecord"
)

// Collector exposes the shared statistics record as Prometheus gauges,
// following the Describe/Collect custom-collector shape used by the
// runZero tcpinfo exporter this is grounded on — except where that
// collector walks a set of tracked connections, this one reads straight
// through to the single shared record.
type Collector struct {
	rec *statsrecord.Record

	selectCount *prometheus.Desc
	threadCount *prometheus.Desc
	forkCount   *prometheus.Desc
	bytesRcvd   *prometheus.Desc
	bytesSent   *prometheus.Desc
	concMethod  *prometheus.Desc
}

// NewCollector builds a Collector reading from rec.
func NewCollector(rec *statsrecord.Record) *Collector {
	const ns = "samfs"
	return &Collector{
		rec:         rec,
		selectCount: prometheus.NewDesc(ns+"_select_clients", "Clients currently served by the select discipline.", nil, nil),
		threadCount: prometheus.NewDesc(ns+"_thread_clients", "Clients currently served by the thread discipline.", nil, nil),
		forkCount:   prometheus.NewDesc(ns+"_fork_clients", "Clients currently served by the fork discipline.", nil, nil),
		bytesRcvd:   prometheus.NewDesc(ns+"_bytes_received_total", "Cumulative bytes received by the server.", nil, nil),
		bytesSent:   prometheus.NewDesc(ns+"_bytes_sent_total", "Cumulative bytes sent by the server.", nil, nil),
		concMethod:  prometheus.NewDesc(ns+"_concurrency_method", "Active concurrency discipline (0=select,1=thread,2=fork).", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.selectCount
	ch <- c.threadCount
	ch <- c.forkCount
	ch <- c.bytesRcvd
	ch <- c.bytesSent
	ch <- c.concMethod
}

// Collect implements prometheus.Collector, reading the shared record's
// non-critical fields without the mutex, exactly as the dashboard does.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.selectCount, prometheus.GaugeValue, float64(c.rec.SelectCount()))
	ch <- prometheus.MustNewConstMetric(c.threadCount, prometheus.GaugeValue, float64(c.rec.ThreadCount()))
	ch <- prometheus.MustNewConstMetric(c.forkCount, prometheus.GaugeValue, float64(c.rec.ForkCount()))
	ch <- prometheus.MustNewConstMetric(c.bytesRcvd, prometheus.CounterValue, float64(c.rec.BytesRcvd()))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(c.rec.BytesSent()))
	ch <- prometheus.MustNewConstMetric(c.concMethod, prometheus.GaugeValue, float64(c.rec.ConcMethod()))
}

package metrics

import (
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"speedtest-exporter/internal/measure"
)

// Metric names exposed on every scrape.
const (
	LatencyMetric  = "ping_latency_ms"
	DownloadMetric = "download_speed_mbps"
	UploadMetric   = "upload_speed_mbps"
)

// Outcome labels for the extended cycle counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Snapshot is the latest published measurement. UpdatedAt is zero until the
// first successful cycle.
type Snapshot struct {
	Measurement measure.Measurement
	UpdatedAt   time.Time
}

// Registry holds the current snapshot and exposes it as Prometheus gauges.
// The measurement loop is the only writer; scrapes read through Collect.
type Registry struct {
	mu       sync.RWMutex
	snapshot Snapshot

	// extended state, guarded by mu
	extended      bool
	cycles        map[string]uint64
	lastDuration  time.Duration
	downloadTrend ewma.MovingAverage
	uploadTrend   ewma.MovingAverage

	latencyDesc  *prometheus.Desc
	downloadDesc *prometheus.Desc
	uploadDesc   *prometheus.Desc

	lastSuccessDesc   *prometheus.Desc
	cyclesDesc        *prometheus.Desc
	cycleDurationDesc *prometheus.Desc
	downloadEWMADesc  *prometheus.Desc
	uploadEWMADesc    *prometheus.Desc

	reg *prometheus.Registry
}

// Option configures a Registry.
type Option func(*Registry)

// WithExtendedMetrics adds staleness, cycle and trend metrics plus the Go
// runtime and process collectors to the three measurement gauges.
func WithExtendedMetrics() Option {
	return func(r *Registry) {
		r.extended = true
	}
}

// NewRegistry creates a Registry with all gauges at zero.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		cycles:        map[string]uint64{OutcomeSuccess: 0, OutcomeFailure: 0},
		downloadTrend: ewma.NewMovingAverage(),
		uploadTrend:   ewma.NewMovingAverage(),

		latencyDesc:  prometheus.NewDesc(LatencyMetric, "Ping latency in milliseconds", nil, nil),
		downloadDesc: prometheus.NewDesc(DownloadMetric, "Download speed in Mbps", nil, nil),
		uploadDesc:   prometheus.NewDesc(UploadMetric, "Upload speed in Mbps", nil, nil),

		lastSuccessDesc: prometheus.NewDesc("speedtest_last_success_timestamp_seconds",
			"Unix time of the last successful measurement, 0 if none", nil, nil),
		cyclesDesc: prometheus.NewDesc("speedtest_cycles_total",
			"Measurement cycles run, by outcome", []string{"outcome"}, nil),
		cycleDurationDesc: prometheus.NewDesc("speedtest_cycle_duration_seconds",
			"Duration of the most recent measurement cycle", nil, nil),
		downloadEWMADesc: prometheus.NewDesc(DownloadMetric+"_ewma",
			"Exponentially weighted moving average of download speed in Mbps", nil, nil),
		uploadEWMADesc: prometheus.NewDesc(UploadMetric+"_ewma",
			"Exponentially weighted moving average of upload speed in Mbps", nil, nil),

		reg: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.reg.MustRegister(r)
	if r.extended {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// SetSnapshot publishes m as the current measurement.
func (r *Registry) SetSnapshot(m measure.Measurement) {
	r.SetSnapshotAt(m, time.Now())
}

// SetSnapshotAt publishes m, recording at as the time of the measurement.
// All values are replaced under one lock so a scrape never mixes cycles.
func (r *Registry) SetSnapshotAt(m measure.Measurement, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = Snapshot{Measurement: m, UpdatedAt: at}
	r.downloadTrend.Add(m.DownloadMbps)
	r.uploadTrend.Add(m.UploadMbps)
}

// Snapshot returns a copy of the current snapshot.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// RecordCycle counts a finished cycle for the extended metrics.
func (r *Registry) RecordCycle(success bool, d time.Duration) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles[outcome]++
	r.lastDuration = d
}

// Extended reports whether extended metrics are exported.
func (r *Registry) Extended() bool {
	return r.extended
}

// Gatherer returns the Prometheus registry to serve.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.latencyDesc
	ch <- r.downloadDesc
	ch <- r.uploadDesc
	if r.extended {
		ch <- r.lastSuccessDesc
		ch <- r.cyclesDesc
		ch <- r.cycleDurationDesc
		ch <- r.downloadEWMADesc
		ch <- r.uploadEWMADesc
	}
}

// Collect implements prometheus.Collector. Values are copied under the read
// lock and emitted after it is released.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.mu.RLock()
	snap := r.snapshot
	success, failure := r.cycles[OutcomeSuccess], r.cycles[OutcomeFailure]
	lastDuration := r.lastDuration
	downloadTrend, uploadTrend := r.downloadTrend.Value(), r.uploadTrend.Value()
	r.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(r.latencyDesc, prometheus.GaugeValue, snap.Measurement.LatencyMs)
	ch <- prometheus.MustNewConstMetric(r.downloadDesc, prometheus.GaugeValue, snap.Measurement.DownloadMbps)
	ch <- prometheus.MustNewConstMetric(r.uploadDesc, prometheus.GaugeValue, snap.Measurement.UploadMbps)

	if !r.extended {
		return
	}
	var lastSuccess float64
	if !snap.UpdatedAt.IsZero() {
		lastSuccess = float64(snap.UpdatedAt.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(r.lastSuccessDesc, prometheus.GaugeValue, lastSuccess)
	ch <- prometheus.MustNewConstMetric(r.cyclesDesc, prometheus.CounterValue, float64(success), OutcomeSuccess)
	ch <- prometheus.MustNewConstMetric(r.cyclesDesc, prometheus.CounterValue, float64(failure), OutcomeFailure)
	ch <- prometheus.MustNewConstMetric(r.cycleDurationDesc, prometheus.GaugeValue, lastDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(r.downloadEWMADesc, prometheus.GaugeValue, downloadTrend)
	ch <- prometheus.MustNewConstMetric(r.uploadEWMADesc, prometheus.GaugeValue, uploadTrend)
}

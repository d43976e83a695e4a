package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"speedtest-exporter/internal/measure"
	"speedtest-exporter/internal/metrics"
	pkgerrors "speedtest-exporter/pkg/errors"
)

// Outcome is the result of one measurement cycle.
type Outcome struct {
	Started     time.Time
	Finished    time.Time
	Measurement measure.Measurement
	Err         error
}

// Success reports whether the cycle produced a measurement.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Duration returns the wall time of the cycle, never negative.
func (o Outcome) Duration() time.Duration {
	if d := o.Finished.Sub(o.Started); d > 0 {
		return d
	}
	return 0
}

// Status returns the outcome label used in logs and metrics.
func (o Outcome) Status() string {
	if o.Success() {
		return metrics.OutcomeSuccess
	}
	return metrics.OutcomeFailure
}

// Runner executes measurement cycles and publishes their results.
type Runner struct {
	prober   measure.Prober
	registry *metrics.Registry
	logger   *zap.Logger
	clock    clockwork.Clock

	mu      sync.Mutex
	cycles  uint64
	last    Outcome
	hasLast bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces the wall clock used to time cycles.
func WithClock(clock clockwork.Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = clock
	}
}

// NewRunner creates a Runner that measures with prober and publishes to
// registry.
func NewRunner(prober measure.Prober, registry *metrics.Registry, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		prober:   prober,
		registry: registry,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle performs one measurement, publishes it on success and writes
// exactly one log entry. Failures, including a panicking prober, are returned
// in the Outcome and leave the published snapshot untouched.
func (r *Runner) RunCycle(ctx context.Context) Outcome {
	out := Outcome{Started: r.clock.Now()}
	out.Measurement, out.Err = r.probe(ctx)
	out.Finished = r.clock.Now()

	if out.Success() {
		r.registry.SetSnapshotAt(out.Measurement, out.Finished)
	}
	r.registry.RecordCycle(out.Success(), out.Duration())
	r.logOutcome(ctx, out)

	r.mu.Lock()
	r.cycles++
	r.last = out
	r.hasLast = true
	r.mu.Unlock()

	return out
}

func (r *Runner) probe(ctx context.Context) (m measure.Measurement, err error) {
	defer func() {
		if v := recover(); v != nil {
			m = measure.Measurement{}
			err = fmt.Errorf("%w: %s: %v", pkgerrors.ErrProbePanicked, r.prober.Name(), v)
		}
	}()
	return r.prober.Probe(ctx)
}

func (r *Runner) logOutcome(ctx context.Context, out Outcome) {
	fields := []zap.Field{
		zap.Duration("duration_seconds", out.Duration()),
		zap.String("outcome", out.Status()),
	}

	if out.Success() {
		fields = append(fields,
			zap.Float64(metrics.LatencyMetric, out.Measurement.LatencyMs),
			zap.Float64(metrics.DownloadMetric, out.Measurement.DownloadMbps),
			zap.Float64(metrics.UploadMetric, out.Measurement.UploadMbps),
		)
		r.logger.Info("measurement cycle finished", fields...)
		return
	}

	fields = append(fields, zap.Error(out.Err))
	if ctx.Err() != nil && errors.Is(out.Err, ctx.Err()) {
		r.logger.Warn("measurement cycle interrupted", fields...)
		return
	}
	r.logger.Error("measurement cycle failed", fields...)
}

// Prober returns the prober the runner measures with.
func (r *Runner) Prober() measure.Prober {
	return r.prober
}

// Cycles returns the number of cycles run so far.
func (r *Runner) Cycles() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles
}

// LastOutcome returns the most recent outcome, if any cycle has run.
func (r *Runner) LastOutcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

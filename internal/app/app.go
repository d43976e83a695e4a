package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"speedtest-exporter/internal/config"
	"speedtest-exporter/internal/logging"
	"speedtest-exporter/internal/measure"
	"speedtest-exporter/internal/metrics"
	"speedtest-exporter/internal/monitor"
	pkgerrors "speedtest-exporter/pkg/errors"
)

// App represents the running exporter
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *metrics.Registry
	Server    *metrics.Server
	Runner    *monitor.Runner
	Scheduler *monitor.Scheduler

	closeLog func() error
}

type options struct {
	prober  measure.Prober
	console io.Writer
}

// Option customises how New wires the exporter.
type Option func(*options)

// WithProber replaces the external speed-test command.
func WithProber(p measure.Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}

// WithConsole sets where log lines are mirrored when log_stderr is enabled.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// New performs every startup step: it validates cfg, opens the run log, binds
// the metrics port and builds the measurement loop. Any failure is returned
// as a *pkgerrors.StartupError and leaves nothing open.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &pkgerrors.StartupError{Stage: "config", Err: err}
	}

	logOpts := logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Level:      cfg.LogLevel,
	}
	if cfg.LogStderr {
		logOpts.Console = o.console
	}
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return nil, &pkgerrors.StartupError{Stage: "log", Err: err}
	}

	var regOpts []metrics.Option
	if cfg.ExtendedMetrics {
		regOpts = append(regOpts, metrics.WithExtendedMetrics())
	}
	registry := metrics.NewRegistry(regOpts...)

	server := metrics.NewServer(cfg.Address(), registry, logger)
	if err := server.Listen(); err != nil {
		logger.Error("failed to bind metrics port", zap.String("address", cfg.Address()), zap.Error(err))
		_ = closeLog()
		return nil, &pkgerrors.StartupError{Stage: "listen", Err: err}
	}

	prober := o.prober
	if prober == nil {
		prober = measure.NewCommandProber(cfg.Command, cfg.Args, cfg.Timeout)
	}
	runner := monitor.NewRunner(prober, registry, logger)

	scheduler, err := monitor.NewScheduler(runner, logger, monitor.SchedulerConfig{
		Interval:    cfg.Interval,
		Mode:        cfg.Schedule,
		StopTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		_ = server.Shutdown(context.Background())
		_ = closeLog()
		return nil, &pkgerrors.StartupError{Stage: "scheduler", Err: err}
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Server:    server,
		Runner:    runner,
		Scheduler: scheduler,
		closeLog:  closeLog,
	}, nil
}

// Run serves metrics and runs the measurement loop until ctx is cancelled or
// the server fails. Per-cycle failures never end Run.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.Server.Serve)

	if err := a.Scheduler.Start(gctx); err != nil {
		_ = a.Server.Shutdown(context.Background())
		_ = g.Wait()
		return fmt.Errorf("failed to start measurement loop: %w", err)
	}

	a.Logger.Info("speedtest exporter started",
		zap.Stringer("address", a.Server.Addr()),
		zap.String("command", a.commandLine()),
		zap.Duration("interval", a.Config.Interval),
		zap.Duration("timeout", a.Config.Timeout),
		zap.Bool("extended_metrics", a.Registry.Extended()))

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	a.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Scheduler.Stop(); err != nil && !errors.Is(err, pkgerrors.ErrSchedulerNotRunning) {
		errs = append(errs, err)
	}
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) commandLine() string {
	if s, ok := a.Runner.Prober().(fmt.Stringer); ok {
		return s.String()
	}
	return a.Runner.Prober().Name()
}

// Close flushes and closes the run log
func (a *App) Close() error {
	if a.closeLog == nil {
		return nil
	}
	err := a.closeLog()
	a.closeLog = nil
	return err
}

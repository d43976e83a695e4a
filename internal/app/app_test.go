package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"speedtest-exporter/internal/config"
	"speedtest-exporter/internal/logging"
	"speedtest-exporter/internal/measure"
	pkgerrors "speedtest-exporter/pkg/errors"
)

type fixedProber struct {
	m   measure.Measurement
	err error
}

func (p *fixedProber) Name() string { return "fixed" }

func (p *fixedProber) Probe(ctx context.Context) (measure.Measurement, error) {
	return p.m, p.err
}

// gatedProber returns its first result immediately and then blocks every
// later probe until release is closed or ctx ends.
type gatedProber struct {
	mu      sync.Mutex
	calls   int
	first   measure.Measurement
	blocked chan struct{}
	release chan struct{}
}

func (p *gatedProber) Name() string { return "gated" }

func (p *gatedProber) Probe(ctx context.Context) (measure.Measurement, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()

	if n == 1 {
		return p.first, nil
	}
	if n == 2 {
		close(p.blocked)
	}
	select {
	case <-p.release:
		return measure.Measurement{LatencyMs: 99, DownloadMbps: 99, UploadMbps: 99}, nil
	case <-ctx.Done():
		return measure.Measurement{}, ctx.Err()
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Bind = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.LogFile = filepath.Join(t.TempDir(), "speedtest_runtime.log")
	cfg.Interval = 50 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func scrape(t *testing.T, a *App) string {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + a.Server.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	return string(body)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startApp(t *testing.T, a *App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return cancel, done
}

func stopApp(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interval = 0

	_, err := New(cfg)
	var startErr *pkgerrors.StartupError
	if !errors.As(err, &startErr) || startErr.Stage != "config" {
		t.Fatalf("err = %v, want config StartupError", err)
	}
	if !errors.Is(err, pkgerrors.ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestNewPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	_, err = New(cfg, WithConsole(io.Discard))
	if !errors.Is(err, pkgerrors.ErrPortInUse) {
		t.Fatalf("err = %v, want ErrPortInUse", err)
	}
	var startErr *pkgerrors.StartupError
	if !errors.As(err, &startErr) || startErr.Stage != "listen" {
		t.Fatalf("err = %v, want listen StartupError", err)
	}
}

func TestNewLogFileUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := testConfig(t)
	cfg.LogFile = filepath.Join(blocker, "speedtest_runtime.log")

	_, err := New(cfg)
	if !errors.Is(err, pkgerrors.ErrLogFileUnavailable) {
		t.Fatalf("err = %v, want ErrLogFileUnavailable", err)
	}
}

func TestRunPublishesMeasurements(t *testing.T) {
	cfg := testConfig(t)
	var console bytes.Buffer
	a, err := New(cfg,
		WithProber(&fixedProber{m: measure.Measurement{LatencyMs: 12.3, DownloadMbps: 50, UploadMbps: 10}}),
		WithConsole(&console))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	cancel, done := startApp(t, a)
	waitFor(t, func() bool { return a.Runner.Cycles() >= 2 })

	body := scrape(t, a)
	for _, line := range []string{"ping_latency_ms 12.3", "download_speed_mbps 50", "upload_speed_mbps 10"} {
		if !strings.Contains(body, line) {
			t.Errorf("scrape missing %q:\n%s", line, body)
		}
	}

	stopApp(t, cancel, done)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var cycles int
	var started bool
	for _, raw := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		line, err := logging.ParseLine(raw)
		if err != nil {
			t.Fatalf("unparseable log line %q: %v", raw, err)
		}
		switch line.Message {
		case "measurement cycle finished":
			cycles++
		case "speedtest exporter started":
			started = true
			if line.Fields["extended_metrics"] != false {
				t.Errorf("startup line extended_metrics = %v", line.Fields["extended_metrics"])
			}
		}
	}
	if !started {
		t.Fatalf("no startup line in log:\n%s", data)
	}
	if cycles < 2 {
		t.Fatalf("got %d cycle entries in log:\n%s", cycles, data)
	}
	if console.Len() == 0 {
		t.Fatal("log_stderr enabled but nothing mirrored to console")
	}
}

func TestRunSurvivesFailingCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogStderr = false
	cfg.Command = "speedtest-binary-that-does-not-exist"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	cancel, done := startApp(t, a)
	waitFor(t, func() bool { return a.Runner.Cycles() >= 3 })

	body := scrape(t, a)
	if !strings.Contains(body, "download_speed_mbps 0\n") {
		t.Fatalf("gauges changed without a successful cycle:\n%s", body)
	}
	last, _ := a.Runner.LastOutcome()
	if !errors.Is(last.Err, pkgerrors.ErrCommandNotFound) {
		t.Fatalf("last outcome err = %v", last.Err)
	}

	stopApp(t, cancel, done)
}

func TestScrapeDuringMeasurementReturnsPreviousValues(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogStderr = false
	p := &gatedProber{
		first:   measure.Measurement{LatencyMs: 20, DownloadMbps: 80, UploadMbps: 15},
		blocked: make(chan struct{}),
		release: make(chan struct{}),
	}
	a, err := New(cfg, WithProber(p))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	cancel, done := startApp(t, a)

	select {
	case <-p.blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("second cycle never started")
	}

	start := time.Now()
	body := scrape(t, a)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("scrape took %s during a running measurement", elapsed)
	}
	if !strings.Contains(body, "download_speed_mbps 80") {
		t.Fatalf("scrape did not return previous cycle:\n%s", body)
	}

	stopApp(t, cancel, done)
	close(p.release)
}

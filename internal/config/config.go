package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	pkgerrors "speedtest-exporter/pkg/errors"
)

// Schedule modes for the measurement loop.
const (
	// ScheduleAfterCompletion waits the full interval after each cycle ends,
	// so the real period is cycle duration + interval.
	ScheduleAfterCompletion = "after_completion"
	// ScheduleFixedRate starts cycles on interval boundaries and skips a tick
	// when the previous cycle is still running.
	ScheduleFixedRate = "fixed_rate"
)

// Defaults
const (
	DefaultPort            = 8000
	DefaultInterval        = 300 * time.Second
	DefaultCommand         = "speedtest"
	DefaultTimeout         = 180 * time.Second
	DefaultLogFile         = "/var/log/speedtest_runtime.log"
	DefaultLogMaxSizeMB    = 200
	DefaultLogMaxBackups   = 2
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10 * time.Second
)

// DefaultArgs requests secure transport and JSON output from speedtest-cli.
var DefaultArgs = []string{"--secure", "--json"}

// Config holds the exporter configuration. It is fixed for the lifetime of
// the process.
type Config struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`

	Interval time.Duration `yaml:"interval"`
	Schedule string        `yaml:"schedule"`

	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`

	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogLevel      string `yaml:"log_level"`
	LogStderr     bool   `yaml:"log_stderr"`

	ExtendedMetrics bool          `yaml:"extended_metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file or flags are given.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		Interval:        DefaultInterval,
		Schedule:        ScheduleAfterCompletion,
		Command:         DefaultCommand,
		Args:            append([]string(nil), DefaultArgs...),
		Timeout:         DefaultTimeout,
		LogFile:         DefaultLogFile,
		LogMaxSizeMB:    DefaultLogMaxSizeMB,
		LogMaxBackups:   DefaultLogMaxBackups,
		LogLevel:        DefaultLogLevel,
		LogStderr:       true,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load reads a YAML config file on top of the defaults. A missing file yields
// the defaults unless mustExist is set.
func Load(path string, mustExist bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// Validate checks the configuration for values the exporter cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return invalid("port", fmt.Errorf("%d out of range 1-65535", c.Port))
	case c.Interval <= 0:
		return invalid("interval", fmt.Errorf("must be positive, got %s", c.Interval))
	case c.Schedule != ScheduleAfterCompletion && c.Schedule != ScheduleFixedRate:
		return invalid("schedule", fmt.Errorf("unknown mode %q (available: %s, %s)",
			c.Schedule, ScheduleAfterCompletion, ScheduleFixedRate))
	case c.Command == "":
		return invalid("command", errors.New("must not be empty"))
	case c.Timeout <= 0:
		return invalid("timeout", fmt.Errorf("must be positive, got %s", c.Timeout))
	case c.LogFile == "":
		return invalid("log_file", errors.New("must not be empty"))
	case c.LogMaxSizeMB <= 0:
		return invalid("log_max_size_mb", fmt.Errorf("must be positive, got %d", c.LogMaxSizeMB))
	case c.LogMaxBackups < 0:
		return invalid("log_max_backups", fmt.Errorf("must not be negative, got %d", c.LogMaxBackups))
	case c.ShutdownTimeout <= 0:
		return invalid("shutdown_timeout", fmt.Errorf("must be positive, got %s", c.ShutdownTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", fmt.Errorf("unknown level %q (available: debug, info, warn, error)", c.LogLevel))
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil && c.Bind != "localhost" {
		return invalid("bind", fmt.Errorf("%q is not an IP address", c.Bind))
	}
	return nil
}

// Address returns the listen address for the metrics server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// YAML renders the configuration as it would appear in a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func invalid(field string, err error) error {
	return &pkgerrors.ConfigError{Field: field, Err: fmt.Errorf("%w: %v", pkgerrors.ErrConfigInvalid, err)}
}

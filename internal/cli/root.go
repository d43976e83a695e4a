package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"speedtest-exporter/internal/config"
	"speedtest-exporter/internal/paths"
)

var version = "dev"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "speedtest-exporter",
	Short: "Prometheus exporter for periodic internet speed tests",
	Long: `speedtest-exporter - periodic internet speed tests as Prometheus gauges

  Runs the speedtest CLI on a fixed interval and serves the latest
  result on an HTTP metrics endpoint.

  Quick start:
    speedtest-exporter                      # measure every 5m, serve :8000
    speedtest-exporter --interval 15m --port 9516
    speedtest-exporter once                 # one measurement, printed
    speedtest-exporter config               # effective configuration

  Exposed gauges:
    • ping_latency_ms
    • download_speed_mbps
    • upload_speed_mbps`,
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runExporter,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", fmt.Sprintf("config file path (default %s)", paths.DefaultConfigFile()))
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("bind", "", "address to bind the metrics server to (default all interfaces)")
	flags.Int("port", config.DefaultPort, "metrics server port")
	flags.Duration("interval", config.DefaultInterval, "pause between measurements")
	flags.String("schedule", config.ScheduleAfterCompletion,
		fmt.Sprintf("schedule mode (%s, %s)", config.ScheduleAfterCompletion, config.ScheduleFixedRate))
	flags.Duration("timeout", config.DefaultTimeout, "measurement command timeout")
	flags.String("command", config.DefaultCommand, "speed test command")
	flags.StringSlice("args", config.DefaultArgs, "speed test command arguments")
	flags.String("log-file", config.DefaultLogFile, "run log path")
	flags.Bool("extended-metrics", false, "export cycle, staleness, trend and runtime metrics")
	registerFlagCompletions()

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "speedtest-exporter %s\n", version)
	},
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then any flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	mustExist := path != ""
	if path == "" {
		path = paths.DefaultConfigFile()
	}

	cfg, err := config.Load(path, mustExist)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("log-level", func() (e error) { cfg.LogLevel, e = flags.GetString("log-level"); return })
	set("bind", func() (e error) { cfg.Bind, e = flags.GetString("bind"); return })
	set("port", func() (e error) { cfg.Port, e = flags.GetInt("port"); return })
	set("interval", func() (e error) { cfg.Interval, e = flags.GetDuration("interval"); return })
	set("schedule", func() (e error) { cfg.Schedule, e = flags.GetString("schedule"); return })
	set("timeout", func() (e error) { cfg.Timeout, e = flags.GetDuration("timeout"); return })
	set("command", func() (e error) { cfg.Command, e = flags.GetString("command"); return })
	set("args", func() (e error) { cfg.Args, e = flags.GetStringSlice("args"); return })
	set("log-file", func() (e error) { cfg.LogFile, e = flags.GetString("log-file"); return })
	set("extended-metrics", func() (e error) { cfg.ExtendedMetrics, e = flags.GetBool("extended-metrics"); return })

	return err
}

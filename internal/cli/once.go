package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"speedtest-exporter/internal/config"
	"speedtest-exporter/internal/logging"
	"speedtest-exporter/internal/measure"
	"speedtest-exporter/internal/metrics"
	"speedtest-exporter/internal/monitor"
)

// newProber builds the prober used by once; replaced in tests.
var newProber = func(cfg *config.Config) measure.Prober {
	return measure.NewCommandProber(cfg.Command, cfg.Args, cfg.Timeout)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single measurement and print it",
	Long: `Run the speed test command once, print the parsed result and exit.
Nothing is served and the run log is not written. Exits non-zero when the
measurement fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger, err := logging.NewConsole(cmd.ErrOrStderr(), cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		prober := newProber(cfg)
		runner := monitor.NewRunner(prober, metrics.NewRegistry(), logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		if s, ok := prober.(fmt.Stringer); ok {
			fmt.Fprintln(out, hintStyle.Render("running "+s.String()+" ..."))
		}

		outcome := runner.RunCycle(ctx)
		fmt.Fprintln(out, renderOutcome(outcome))

		if !outcome.Success() {
			return fmt.Errorf("measurement failed: %w", outcome.Err)
		}
		return nil
	},
}

func renderOutcome(o monitor.Outcome) string {
	status := successStyle.Render("✓ " + o.Status())
	if !o.Success() {
		status = failureStyle.Render("✗ " + o.Status())
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Speedtest"),
		status,
		hintStyle.Render(fmt.Sprintf(" (%.1fs)", o.Duration().Seconds())),
	)

	rows := []string{header}
	row := func(label, value string) {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value)))
	}

	if o.Success() {
		row("ping", fmt.Sprintf("%.2f ms", o.Measurement.LatencyMs))
		row("download", fmt.Sprintf("%.2f Mbps", o.Measurement.DownloadMbps))
		row("upload", fmt.Sprintf("%.2f Mbps", o.Measurement.UploadMbps))
	} else {
		row("error", strings.TrimSpace(o.Err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

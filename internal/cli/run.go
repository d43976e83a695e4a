package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"speedtest-exporter/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the exporter (default)",
	Long: `Serve the metrics endpoint and measure on a fixed interval until
interrupted. Failed measurements are logged and retried on the next cycle;
only startup failures (port in use, unwritable log file, invalid config)
stop the process.`,
	Args: cobra.NoArgs,
	RunE: runExporter,
}

func runExporter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, app.WithConsole(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}

package cli

import (
	"github.com/spf13/cobra"

	"speedtest-exporter/internal/config"
)

// completeScheduleModes provides shell completion for --schedule.
func completeScheduleModes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		config.ScheduleAfterCompletion + "\twait the interval after each measurement ends",
		config.ScheduleFixedRate + "\tstart measurements on interval boundaries",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeLogLevels provides shell completion for --log-level.
func completeLogLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
}

// completeConfigFiles restricts --config completion to YAML files.
func completeConfigFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
}

// registerFlagCompletions must run after the flags are defined.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("schedule", completeScheduleModes)
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", completeLogLevels)
	_ = rootCmd.RegisterFlagCompletionFunc("config", completeConfigFiles)
}

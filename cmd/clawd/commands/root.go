// Package commands provides the clawd CLI: a long-lived daemon (serve) plus
// operator commands (token, mcp) that work directly against the same data
// directory rather than over JSON-RPC.
//
// Uses the same cobra.Command tree and PersistentPreRun-driven logging.Init
// idiom as the rest of this codebase, restructured around one daemon
// process instead of an interactive TUI/headless split.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawd-io/clawd/internal/logging"
)

var (
	// Version is set at build time via -ldflags.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs bool
	logLevel  string
	logFile   bool
)

var rootCmd = &cobra.Command{
	Use:     "clawd",
	Short:   "clawd - a resident daemon coordinating multi-agent coding sessions",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to /tmp/clawd-YYYYMMDD-HHMMSS.log")

	rootCmd.SetVersionTemplate(fmt.Sprintf("clawd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns dir if non-empty, else the process's current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// Package main implements the unstack CLI.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"unstack/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "unstack",
	Short: "Reconstruct declarative code from stack-machine IR",
	Long: `unstack translates stack-machine functions into structured declarative
code, classifies function purity and runs programs in either form.`,
	SilenceUsage:      true,
	PersistentPreRunE: preRun,
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(purityCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to unstack.toml (default: search upwards from the working directory)")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "show timing information")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	pf.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	pf.Int("trace-ring-size", 4096, "ring buffer size for --trace-mode=ring|both")
	pf.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 disables)")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	traceCleanup(err != nil)
	profileCleanup()
	if err != nil {
		os.Exit(1)
	}
}

// Installed by preRun, released in main.
var (
	traceCleanup   = func(bool) {}
	profileCleanup = func() {}
)

func preRun(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyColor(s.color)
	cleanup, err := setupTracing(cmd, s)
	if err != nil {
		return err
	}
	traceCleanup = cleanup
	if profileCleanup, err = setupProfiling(cmd); err != nil {
		profileCleanup = func() {}
		return err
	}
	cmd.SetContext(withSettings(cmd.Context(), s))
	return nil
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

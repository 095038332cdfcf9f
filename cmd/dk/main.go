package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/client/config"
	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/datakitchen/dkcli/internal/version"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var home, _ = os.UserHomeDir()

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "dk",
	Short:         "DataKitchen command line client",
	Long:          "dk keeps local recipe working copies in sync with DataKitchen kitchens and merges kitchens.",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			consoleLevel.Set(slog.LevelDebug)
		}
	},
}

// consoleLevel is raised to debug by --debug. The log file always gets debug.
var consoleLevel = new(slog.LevelVar)

func init() {
	consoleLevel.Set(slog.LevelWarn)
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "dk config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Log debug output to the terminal")
}

func main() {
	logFile, err := openLogFile(config.DefaultLogFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	slog.SetDefault(newLogger(os.Stderr, logFile))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// newLogger logs to the terminal with tint and to the log file as text.
func newLogger(console *os.File, file io.Writer) *slog.Logger {
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      consoleLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(console.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)).
		With("pid", os.Getpid())
}

// printError prints err and the hints attached to it.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", red("Error:"), err)
	if hints := errors.FlattenHints(err); hints != "" {
		fmt.Fprintf(w, "%s %s\n", yellow("Hint:"), hints)
	}
}

// Command docqa answers questions about uploaded documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/logging"
)

const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

var (
	cfgPath string
	verbose bool

	cfg    *config.AppConfig
	logger *zap.Logger
)

// configError marks failures that should exit with exitConfig.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Chat with your documents",
	Long: `docqa indexes uploaded PDF, DOCX and TXT files and answers questions
about them with a hosted language model.

Run "docqa serve" for the HTTP API, "docqa chat" for the terminal chat,
or "docqa app" for both in one process.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var (
			path string
			err  error
		)
		if cfgPath == "" {
			cfg, path, err = config.LoadDefault()
		} else {
			path = cfgPath
			cfg, err = config.Load(cfgPath)
		}
		if err != nil {
			return configError{fmt.Errorf("failed to load config: %w", err)}
		}

		// the chat screen owns the terminal, so interactive commands log to a file
		var paths []string
		if cmd.Annotations["interactive"] == "true" {
			paths = []string{logFilePath()}
		}
		logger, err = logging.New(cfg.Log, verbose, paths...)
		if err != nil {
			return configError{err}
		}
		logger.Debug("config loaded", zap.String("path", path))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(appCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var ce configError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce), errors.Is(err, config.ErrInvalid):
		return exitConfig
	default:
		return exitError
	}
}

func logFilePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return os.DevNull
	}
	dir = filepath.Join(dir, "docqa")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.DevNull
	}
	return filepath.Join(dir, "docqa.log")
}

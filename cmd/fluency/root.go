package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fluency/internal/app"
	"github.com/MrWong99/fluency/internal/config"
)

// errAssessmentFailed is returned after a failed assessment has been printed,
// so the process exits non-zero without repeating the message.
var errAssessmentFailed = errors.New("assessment failed")

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string

	level *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:     "fluency",
		Short:   "Assess the reading fluency of recorded students",
		Version: version,
		Long: `fluency compares a student's recording of a passage with the passage itself
and reports accuracy, reading speed, and the mispronounced, skipped and added
words.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if opts.logLevel != "" {
				opts.level.Set(app.ParseLevel(config.LogLevel(opts.logLevel)))
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), opts.level))
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newAssessCmd(opts),
		newBatchCmd(opts),
		newCompareCmd(),
	)
	return root
}

// loadConfig reads the configuration file and applies its log level unless
// --log-level was given.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", o.configPath)
		}
		return nil, err
	}
	if o.logLevel == "" {
		o.level.Set(app.ParseLevel(cfg.Server.LogLevel))
	}
	return cfg, nil
}

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

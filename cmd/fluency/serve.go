package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fluency/internal/app"
	"github.com/MrWong99/fluency/internal/config"
	"github.com/MrWong99/fluency/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var stdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, stdio)
		},
	}
	cmd.Flags().BoolVar(&stdio, "mcp-stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, stdio bool) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	slog.Info("fluency starting",
		"config", root.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"mcp_stdio", stdio,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// In stdio mode stdout carries the protocol.
	summaryOut := cmd.OutOrStdout()
	if stdio {
		summaryOut = cmd.ErrOrStderr()
	}
	printStartupSummary(summaryOut, cfg, stdio)

	application, err := app.New(ctx, cfg, app.WithVersion(version), app.WithLevelVar(root.level))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	watcher, err := config.NewWatcher(root.configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
		go reloadOnHangup(ctx, watcher)
	}

	if stdio {
		err = application.RunStdio(ctx)
	} else {
		slog.Info("server ready, press Ctrl+C to shut down")
		err = application.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		slog.Error("run error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if serr := application.Shutdown(shutdownCtx); serr != nil {
		slog.Error("shutdown error", "err", serr)
		err = serr
	}
	if terr := shutdownTelemetry(shutdownCtx); terr != nil {
		slog.Warn("telemetry shutdown error", "err", terr)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// reloadOnHangup re-reads the config file whenever the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if w.Reload() {
				slog.Info("SIGHUP: configuration reloaded", "log_level", w.Current().Server.LogLevel)
			} else {
				slog.Info("SIGHUP: configuration unchanged")
			}
		}
	}
}

func printStartupSummary(w io.Writer, cfg *config.Config, stdio bool) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        fluency: startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Primary STT", cfg.Transcription.Primary.Name, cfg.Transcription.Primary.Model)
	for i, fb := range cfg.Transcription.Fallbacks {
		printProvider(w, fmt.Sprintf("Fallback %d", i+1), fb.Name, fb.Model)
	}
	printField(w, "Timeout", cfg.Transcription.Timeout.String())
	if cfg.Store.PostgresDSN != "" {
		printField(w, "Report store", "postgres")
	} else {
		printField(w, "Report store", "(disabled)")
	}
	switch {
	case stdio:
		printField(w, "MCP", "stdio")
	case cfg.MCP.Disabled:
		printField(w, "MCP", "(disabled)")
	default:
		printField(w, "MCP", cfg.MCP.Path)
	}
	if !stdio {
		printField(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printField(w, kind, value)
}

func printField(w io.Writer, key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-scanner/internal/config"
	"github.com/zombor/receipt-scanner/internal/telemetry"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const serviceName = "receipt-scanner"

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run parses args into the command tree and executes the selected command
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	rootFlags := ff.NewFlagSet(serviceName)
	verbose := rootFlags.BoolLong("verbose", "Enable debug logging")

	root := &ff.Command{
		Name:      serviceName,
		Usage:     "receipt-scanner <subcommand> [flags]",
		ShortHelp: "capture receipts, extract their text and ask a language model about them",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			newServeCommand(rootFlags),
			newScanCommand(rootFlags, stdin, stdout),
		},
	}

	if err := root.Parse(args, ff.WithEnvVarPrefix("RECEIPT_SCANNER")); err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(selected(root)))
		if errors.Is(err, ff.ErrHelp) {
			return nil
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return err
	}

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	shutdown := setupTelemetry(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root))
			return err
		}
		slog.Error("Command failed", "command", selected(root).Name, "error", err)
		return err
	}
	return nil
}

// setupTelemetry installs trace export when configured. Failures only
// disable tracing.
func setupTelemetry(ctx context.Context) func(context.Context) error {
	noop := func(context.Context) error { return nil }

	cfg, err := config.LoadTelemetry()
	if err != nil {
		slog.Warn("Invalid telemetry configuration, tracing disabled", "error", err)
		return noop
	}
	shutdown, err := telemetry.Setup(ctx, serviceName, version, cfg)
	if err != nil {
		slog.Warn("Failed to initialize tracing", "error", err)
		return noop
	}
	if cfg.Enabled && cfg.Endpoint != "" {
		slog.Info("Tracing enabled", "endpoint", cfg.Endpoint)
	}
	return shutdown
}

// selected returns the command chosen by the last parse, or root if parsing
// stopped before any was chosen
func selected(root *ff.Command) *ff.Command {
	if cmd := root.GetSelected(); cmd != nil {
		return cmd
	}
	return root
}

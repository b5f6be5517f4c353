package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-scanner/internal/config"
	"github.com/zombor/receipt-scanner/internal/delivery"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr      string
	root      string
	openAIKey string
}

func newServeCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(parent)
	var (
		addr      = fs.StringLong("addr", "0.0.0.0:5000", "HTTP listen address")
		root      = fs.StringLong("root", "", "Directory to serve instead of the embedded page")
		openAIKey = fs.StringLong("openai-key", "", "OpenAI API key injected into the page (or set OPENAI_API_KEY env var)")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "receipt-scanner serve [flags]",
		ShortHelp: "serve the browser scanner page",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			return runServe(ctx, serveOptions{
				addr:      *addr,
				root:      *root,
				openAIKey: *openAIKey,
			})
		},
	}
}

func runServe(ctx context.Context, opts serveOptions) error {
	files, err := serveFiles(opts.root)
	if err != nil {
		return err
	}

	secret := opts.openAIKey
	if secret == "" {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		secret = secrets.OpenAIKey
	}
	if secret == "" {
		slog.Warn("No OpenAI API key configured; the page will not be able to analyze receipts. Set --openai-key or OPENAI_API_KEY")
	}

	server := delivery.NewServer(files, secret)
	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           otelhttp.NewHandler(server, "receipt-scanner.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server started", "address", fmt.Sprintf("http://%s", opts.addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// serveFiles returns the directory to serve, or the embedded page when root
// is empty
func serveFiles(root string) (fs.FS, error) {
	if root == "" {
		return delivery.DefaultFiles(), nil
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	slog.Info("Serving files from disk", "root", root)
	return os.DirFS(root), nil
}

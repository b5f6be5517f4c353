package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openai/openai-go/option"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/receipt-scanner/internal/analysis"
	"github.com/zombor/receipt-scanner/internal/capture"
	"github.com/zombor/receipt-scanner/internal/config"
	"github.com/zombor/receipt-scanner/internal/prefs"
	"github.com/zombor/receipt-scanner/internal/recognition"
	"github.com/zombor/receipt-scanner/internal/recognition/tesseract"
	"github.com/zombor/receipt-scanner/internal/terminal"
	"github.com/zombor/receipt-scanner/internal/workflow"
)

type scanOptions struct {
	image     string
	prompt    string
	cameraURL string
	lang      string
	provider  string
	model     string
	maxTokens int
	openAIKey string
	openAIURL string
	geminiKey string
	ollamaURL string
	prefsPath string
}

func newScanCommand(parent *ff.FlagSet, stdin io.Reader, stdout io.Writer) *ff.Command {
	fs := ff.NewFlagSet("scan").SetParent(parent)
	var (
		image     = fs.StringLong("image", "", "Scan this image or PDF and print the analysis, without prompting")
		prompt    = fs.StringLong("prompt", "", "Instructions for the analysis (default: remembered or built-in)")
		cameraURL = fs.StringLong("camera-url", "", "Snapshot URL of a network camera, e.g. http://phone:8080/shot.jpg")
		lang      = fs.StringLong("lang", recognition.DefaultLanguage, "OCR language: BCP 47 tag or Tesseract code (eng, deu, eng+fra)")
		provider  = fs.StringLong("provider", "openai", "Analysis provider: 'openai', 'gemini' or 'ollama'")
		model     = fs.StringLong("model", "", "Model name (default depends on provider)")
		maxTokens = fs.IntLong("max-tokens", analysis.DefaultMaxTokens, "Maximum tokens in the analysis")
		openAIKey = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIURL = fs.StringLong("openai-url", "", "OpenAI-compatible API base URL")
		geminiKey = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		ollamaURL = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		prefsPath = fs.StringLong("prefs", "receipt-scanner.db", "File remembering your instructions (empty to disable)")
	)

	return &ff.Command{
		Name:      "scan",
		Usage:     "receipt-scanner scan [flags]",
		ShortHelp: "scan receipts in the terminal",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			return runScan(ctx, stdin, stdout, scanOptions{
				image:     *image,
				prompt:    *prompt,
				cameraURL: *cameraURL,
				lang:      *lang,
				provider:  *provider,
				model:     *model,
				maxTokens: *maxTokens,
				openAIKey: *openAIKey,
				openAIURL: *openAIURL,
				geminiKey: *geminiKey,
				ollamaURL: *ollamaURL,
				prefsPath: *prefsPath,
			})
		},
	}
}

func runScan(ctx context.Context, stdin io.Reader, stdout io.Writer, opts scanOptions) error {
	if _, err := recognition.NormalizeLanguage(opts.lang); err != nil {
		return err
	}

	cfg, err := analysisConfig(opts)
	if err != nil {
		return err
	}
	cfg.Engine = tesseract.New()
	cfg.Language = opts.lang

	if opts.cameraURL != "" {
		slog.Info("Using network camera", "url", opts.cameraURL)
		cfg.Device = capture.NewSnapshotCamera(opts.cameraURL)
	}

	if opts.prefsPath != "" {
		store, err := prefs.NewBoltStore(opts.prefsPath)
		if err != nil {
			slog.Warn("Failed to open preferences, instructions will not be remembered", "path", opts.prefsPath, "error", err)
		} else {
			defer store.Close()
			cfg.Store = store
		}
	}

	ctl := workflow.New(cfg)
	slog.Debug("Session started", "session", ctl.ID(), "provider", opts.provider, "model", cfg.Model)

	shell := terminal.NewShell(ctl, stdin, stdout)
	if opts.image == "" {
		return shell.Run(ctx)
	}

	result, err := shell.Batch(ctx, opts.image, opts.prompt)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, result)
	return nil
}

// analysisConfig selects the analysis provider. Credentials are read when
// each analysis starts, so a key exported after startup is picked up.
func analysisConfig(opts scanOptions) (workflow.Config, error) {
	cfg := workflow.Config{
		Model:     opts.model,
		MaxTokens: opts.maxTokens,
	}

	switch opts.provider {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = analysis.DefaultModel
		}
		var reqOpts []option.RequestOption
		if opts.openAIURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.openAIURL))
		}
		cfg.Credential = credential(opts.openAIKey, func(s config.Secrets) string { return s.OpenAIKey })
		cfg.NewAnalyzer = func(apiKey string) (analysis.Analyzer, error) {
			return analysis.NewOpenAI(apiKey, reqOpts...)
		}
	case "gemini":
		if cfg.Model == "" {
			cfg.Model = "gemini-2.5-pro"
		}
		model := cfg.Model
		cfg.Credential = credential(opts.geminiKey, func(s config.Secrets) string { return s.GeminiKey })
		cfg.NewAnalyzer = func(apiKey string) (analysis.Analyzer, error) {
			return analysis.NewGemini(apiKey, model)
		}
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = "llama3.2"
		}
		model, url := cfg.Model, opts.ollamaURL
		cfg.NewAnalyzer = func(string) (analysis.Analyzer, error) {
			return analysis.NewOllama(url, model)
		}
	default:
		return workflow.Config{}, fmt.Errorf("invalid provider %q: must be openai, gemini or ollama", opts.provider)
	}

	return cfg, nil
}

// credential returns the flag value when set, otherwise the environment
// value at call time
func credential(flagValue string, pick func(config.Secrets) string) func() string {
	return func() string {
		if flagValue != "" {
			return flagValue
		}
		secrets, err := config.LoadSecrets()
		if err != nil {
			slog.Warn("Failed to read API keys from environment", "error", err)
			return ""
		}
		return pick(secrets)
	}
}

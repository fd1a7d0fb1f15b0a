package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	promptText   string
	referenceURL string
	autoApprove  bool
	overwrite    bool
	apiKey       string
	settingsPath string
	outputDir    string
	metricsAddr  string
	debugMode    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "page-writer [plan-file]",
	Short: "Generate static web pages from a plan using AI",
	Long: `Turns a page plan (or a natural-language description with --prompt) into
index.html, styles.css and script.js through a series of generation stages.
Every stage degrades to deterministic output, so a run always yields a page.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if debugMode {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&promptText, "prompt", "", "Describe the page instead of passing a plan file")
	rootCmd.Flags().StringVar(&referenceURL, "reference", "", "URL of reference material for the enhancer")
	rootCmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "Approve the generated plan without asking")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Regenerate sites whose directory already exists")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the configured provider")
	rootCmd.Flags().StringVar(&settingsPath, "settings", "", "Path to a settings.yaml file")
	rootCmd.Flags().StringVar(&outputDir, "out", "", "Output directory (overrides settings)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && promptText == "" {
		return errors.New("either a plan file or --prompt is required")
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	overrides := &ConfigOverrides{}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if outputDir != "" {
		overrides.OutputDir = &outputDir
	}
	settings, err := LoadSettings(overrides)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	key, err := resolveAPIKey(settings.Provider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := NewMetrics()
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := NewGenerationClient(ctx, settings, key, logger)
	if err != nil {
		return fmt.Errorf("creating generation client: %w", err)
	}
	logger.Info("Generation backend ready", zap.String("backend", client.Name()), zap.String("output", settings.OutputDirectory))

	processor := NewProcessor(client, settings, logger, metrics)
	processor.SetOverwrite(overwrite)

	var results []ProcessingResult
	if promptText != "" {
		results = []ProcessingResult{processor.ProcessPrompt(ctx, promptText, referenceURL, autoApprove)}
	} else {
		plans, err := LoadPlanFile(args[0])
		if err != nil {
			return err
		}
		results, err = processor.ProcessPlans(ctx, plans)
		if err != nil {
			return fmt.Errorf("processing plans: %w", err)
		}
	}

	return summarize(results)
}

// resolveAPIKey reads the key from the flag or the provider's environment variable
func resolveAPIKey(provider string) (string, error) {
	if apiKey != "" || provider == "offline" {
		return apiKey, nil
	}
	envVar := "ANTHROPIC_API_KEY"
	if provider == "gemini" {
		envVar = "GEMINI_API_KEY"
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key required: use --api-key flag or %s environment variable", envVar)
}

func serveMetrics(addr string, metrics *Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}

func summarize(results []ProcessingResult) error {
	var failed int
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			fmt.Printf("✓ %s (%d fallback artifacts)\n", r.Directory, r.Fallbacks)
		case StatusSkipped:
			if r.Error != nil {
				fmt.Printf("- skipped: %v\n", r.Error)
			} else {
				fmt.Printf("- skipped: %s exists\n", r.Directory)
			}
		default:
			failed++
			if errIsInvariant(r.Error) {
				fmt.Printf("✗ workflow halted: %v\n", r.Error)
			} else {
				fmt.Printf("✗ %v\n", r.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

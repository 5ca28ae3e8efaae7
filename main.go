package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	settingsPath         string
	apiKey               string
	youtubeAPIKey        string
	csvPath              string
	bibliographyPath     string
	xlsxPath             string
	promptLogPath        string
	logFilePath          string
	concurrency          int
	normalizeMode        string
	extractionPromptPath string
	pdfPromptPath        string
	websitePromptPath    string
	normalizePromptPath  string
	listPath             string
	debugMode            bool
)

var rootCmd = &cobra.Command{
	Use:   "references [urls-file]",
	Short: "Build a normalized bibliography from a list of URLs",
	Long: `Reads a newline-delimited list of URLs (a file, an http(s) location, or "-" for stdin),
extracts title, author, date and source for each one, and writes a tabular file plus a
plain-text bibliography in a single house style.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		source := "urls.txt"
		if len(args) > 0 {
			source = args[0]
		}

		cfg, logger, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		// PDF and website extraction always call the generative-text service
		key := resolveAPIKey(cfg)
		if key == "" {
			return fmt.Errorf("API key required: use --api-key flag or %s environment variable", APIKeyEnv(cfg.Settings.LLM.Provider))
		}

		processor, err := NewProcessor(cfg, ProcessorOptions{
			APIKey:        key,
			YouTubeAPIKey: firstNonEmpty(youtubeAPIKey, os.Getenv("YOUTUBE_API_KEY")),
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create processor: %w", err)
		}
		defer processor.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := processor.Run(ctx, source, cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}
		if ctx.Err() != nil {
			logger.Warn("run.aborted", "run_id", summary.RunID)
		}
		return nil
	},
}

var reformatCmd = &cobra.Command{
	Use:   "reformat [csv-file]",
	Short: "Re-render and re-normalize the bibliography from an existing tabular file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		input := cfg.Settings.Output.CSV
		if len(args) > 0 {
			input = args[0]
		}

		var generator Generator
		if cfg.Settings.Normalize.Mode == NormalizeLLM {
			key := resolveAPIKey(cfg)
			generator, err = NewGenerator(cfg.Settings.LLM, key, nil)
			if err != nil {
				return fmt.Errorf("creating generative-text backend: %w", err)
			}
		}

		promptLog := NewPromptLog(cfg.Settings.Output.PromptLog, cfg.Settings.LLM.CostPerMillionTokens, logger)
		defer promptLog.Close()

		normalizer, err := buildNormalizer(cfg, generator, newRateLimiter(cfg.Settings.LLM.RequestsPerMinute), promptLog, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = Reformat(ctx, input, cfg.Settings.Output.Bibliography, normalizer, logger)
		return err
	},
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Append a URL to the input list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := addURLToList(listPath, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", args[0], listPath)
		return nil
	},
}

// setup loads .env, settings and overrides, applies flag overrides and
// builds the logger
func setup(cmd *cobra.Command) (*Config, *slog.Logger, func(), error) {
	// .env is optional
	_ = godotenv.Load()

	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(debugMode)}))

	overrides := &ConfigOverrides{}
	setIfChanged := func(name string, value *string, target **string) {
		if cmd.Flags().Changed(name) {
			*target = value
		}
	}
	setIfChanged("config", &settingsPath, &overrides.SettingsPath)
	setIfChanged("extraction-prompt", &extractionPromptPath, &overrides.ExtractionPromptPath)
	setIfChanged("pdf-prompt", &pdfPromptPath, &overrides.PDFPromptPath)
	setIfChanged("website-prompt", &websitePromptPath, &overrides.WebsitePromptPath)
	setIfChanged("normalize-prompt", &normalizePromptPath, &overrides.NormalizePromptPath)

	cfg, err := NewConfig(overrides, bootstrap)
	if err != nil {
		return nil, nil, nil, err
	}

	s := cfg.Settings
	flags := cmd.Flags()
	if flags.Changed("csv") {
		s.Output.CSV = csvPath
	}
	if flags.Changed("out") {
		s.Output.Bibliography = bibliographyPath
	}
	if flags.Changed("xlsx") {
		s.Output.XLSX = xlsxPath
	}
	if flags.Changed("prompt-log") {
		s.Output.PromptLog = promptLogPath
	}
	if flags.Changed("log-file") {
		s.Output.LogFile = logFilePath
	}
	if flags.Changed("concurrency") {
		s.Concurrency = concurrency
	}
	if flags.Changed("normalize") {
		s.Normalize.Mode = normalizeMode
	}
	if err := cfg.validate(bootstrap); err != nil {
		return nil, nil, nil, err
	}

	logger, closeLog := SetupLogger(s.Output.LogFile, logLevel(debugMode))
	slog.SetDefault(logger)
	cleanup := func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}
	return cfg, logger, cleanup, nil
}

// resolveAPIKey prefers the flag over the provider's environment variable
func resolveAPIKey(cfg *Config) string {
	return firstNonEmpty(apiKey, os.Getenv(APIKeyEnv(cfg.Settings.LLM.Provider)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsPath, "config", "", "Path to settings YAML (must exist)")
	pf.StringVar(&apiKey, "api-key", "", "Generative-text service API key")
	pf.StringVar(&csvPath, "csv", "", "Tabular output path")
	pf.StringVar(&bibliographyPath, "out", "", "Bibliography output path")
	pf.StringVar(&promptLogPath, "prompt-log", "", "Prompt/response audit log path")
	pf.StringVar(&logFilePath, "log-file", "", "Append JSON logs to this file")
	pf.StringVar(&normalizeMode, "normalize", "", "Normalization mode: llm, local or off")
	pf.StringVar(&normalizePromptPath, "normalize-prompt", "", "Path to custom normalization system prompt")
	pf.BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.Flags().StringVar(&youtubeAPIKey, "youtube-api-key", "", "YouTube Data API key")
	rootCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the table as an XLSX workbook")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of URLs processed at once")
	rootCmd.Flags().StringVar(&extractionPromptPath, "extraction-prompt", "", "Path to custom extraction system prompt")
	rootCmd.Flags().StringVar(&pdfPromptPath, "pdf-prompt", "", "Path to custom PDF extraction template")
	rootCmd.Flags().StringVar(&websitePromptPath, "website-prompt", "", "Path to custom website extraction template")

	addCmd.Flags().StringVar(&listPath, "list", "urls.txt", "URL list file")

	rootCmd.AddCommand(reformatCmd, addCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"faqharvest/internal/artifacts"
	"faqharvest/internal/config"
	"faqharvest/internal/orchestrator"
)

var version = "dev"

var (
	configPath   string
	outputDir    string
	mode         string
	routeCap     int
	outputFormat string
	timeout      time.Duration
	delay        time.Duration
	showUI       bool
	proxyURL     string
	ocrEndpoint  string
	noImages     bool
	submenus     []string
	vocabulary   []string
	verbose      bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:     "faqharvest [start-url]",
		Short:   "Harvest FAQ content from JavaScript-rendered help centers",
		Version: version,
		Long: `faqharvest drives a real browser through a single-page help center,
discovers its categories and questions, expands every answer, and
writes the extracted content, page snapshots, and images to a
structured output directory. Flaky navigation is retried with
escalating wait conditions and periodic browser recycling.`,
		Example: `  # Harvest a help center with defaults
  faqharvest https://example.com/help

  # Hash-routed SPA, capped at ten routes, JSON report
  faqharvest --mode hash --route-cap 10 -f json https://example.com/help

  # Run from a config file with per-target retry policies
  faqharvest -c harvest.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && configPath == "" {
				cmd.Help()
				os.Exit(0)
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE:         run,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for artifacts")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "Route discovery mode (links, tabs, hash)")
	rootCmd.Flags().IntVar(&routeCap, "route-cap", 0, "Max routes to harvest (0 uses the config value)")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Report format (text, json)")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Overall run timeout (0 uses the config value)")
	rootCmd.Flags().DurationVar(&delay, "delay", -1, "Delay between page actions (-1 uses the config value)")
	rootCmd.Flags().BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", os.Getenv("FAQHARVEST_PROXY"), "Proxy URL, defaults to FAQHARVEST_PROXY env var")
	rootCmd.Flags().StringVar(&ocrEndpoint, "ocr", "", "OCR service endpoint for image text recognition")
	rootCmd.Flags().BoolVar(&noImages, "no-images", false, "Skip image harvesting")
	rootCmd.Flags().StringSliceVar(&submenus, "submenu", nil, "Submenu/category selector hints (can repeat)")
	rootCmd.Flags().StringSliceVar(&vocabulary, "vocab", nil, "Category vocabulary entries (can repeat)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	if err := validateFlags(cfg); err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "faqharvest",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	store, err := artifacts.NewStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if d := cfg.Timeout.Std(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	driver, err := orchestrator.NewDriver(cfg, logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer driver.Close()

	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond,
		spinner.WithWriter(os.Stderr), spinner.WithSuffix(" harvesting "+cfg.StartURL))
	spin.Start()

	report, runErr := orchestrator.New(cfg, driver, store, logger).Run(ctx)
	spin.Stop()
	if runErr != nil {
		return runErr
	}

	out, err := formatReport(report, outputFormat)
	if err != nil {
		return err
	}
	fmt.Println(out)

	if path, err := store.SaveReport("report.json", mustJSON(report)); err == nil {
		logger.Info("report saved", "path", path)
	}
	return nil
}

// applyFlags overlays explicit flags on the loaded config.
func applyFlags(cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.StartURL = normalizeURL(args[0])
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if routeCap > 0 {
		cfg.RouteCap = routeCap
	}
	if timeout > 0 {
		cfg.Timeout = config.Duration(timeout)
	}
	if delay >= 0 {
		cfg.Delay = config.Duration(delay)
	}
	if showUI {
		headless := false
		cfg.Headless = &headless
	}
	if proxyURL != "" {
		cfg.Proxy = proxyURL
	}
	if ocrEndpoint != "" {
		cfg.OCREndpoint = ocrEndpoint
	}
	if noImages {
		images := false
		cfg.Images = &images
	}
	if len(submenus) > 0 {
		cfg.SubmenuSelectors = submenus
	}
	if len(vocabulary) > 0 {
		cfg.Vocabulary = vocabulary
	}
}

func validateFlags(cfg *config.Config) error {
	if cfg.StartURL == "" {
		return fmt.Errorf("a start URL is required (argument or config start_url)")
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid report format: %s", outputFormat)
	}

	return cfg.Validate()
}

func formatReport(report *orchestrator.Report, format string) (string, error) {
	switch format {
	case "json":
		data, err := report.ToJSON()
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return report.ToText(), nil
	}
}

func mustJSON(report *orchestrator.Report) []byte {
	data, err := report.ToJSON()
	if err != nil {
		return []byte("{}")
	}
	return data
}

// normalizeURL adds https:// when the scheme is missing.
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + rawURL
	}
	return rawURL
}

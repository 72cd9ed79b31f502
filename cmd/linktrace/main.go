package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/linktrace/internal/config"
	"github.com/amosWeiskopf/linktrace/internal/logging"
	"github.com/amosWeiskopf/linktrace/pkg/analyzer"
	"github.com/amosWeiskopf/linktrace/pkg/classifier"
	"github.com/amosWeiskopf/linktrace/pkg/crawler"
	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
	"github.com/amosWeiskopf/linktrace/pkg/reporter"
	"github.com/amosWeiskopf/linktrace/pkg/resolver"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "linktrace",
	Short: "LinkTrace - keyword link crawler",
	Long: `LinkTrace crawls a site and reports every place a keyword appears,
following affiliate, shortener and redirect links to their destination.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [URL]",
	Short: "Crawl a site for keyword matches",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [URL]",
	Short: "Follow a link's redirect chain and print every hop",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [URL...]",
	Short: "Report whether URLs look like affiliate or redirect links",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

// setup loads configuration, applies global flags and builds the logger
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, func() error, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	out, closeLog, err := logging.OpenOutput(cfg.Logging.OutputPath)
	if err != nil {
		return nil, nil, nil, err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
		Quiet:  quiet,
		Color:  out == os.Stderr,
	})
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

// signalContext watches SIGINT and SIGTERM. The first signal calls
// onSignal so work in flight can finish; a second one cancels the context.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go watchSignals(ctx, sigs, onSignal, cancel)
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func watchSignals(ctx context.Context, sigs <-chan os.Signal, onFirst func(), cancel context.CancelFunc) {
	select {
	case <-sigs:
		fmt.Fprintln(os.Stderr, "stopping after the current page, interrupt again to abort")
		onFirst()
	case <-ctx.Done():
		return
	}
	select {
	case <-sigs:
		cancel()
	case <-ctx.Done():
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	flags := cmd.Flags()
	if flags.Changed("max-pages") {
		cfg.Crawler.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("workers") {
		cfg.Crawler.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("render") {
		cfg.Crawler.Render, _ = flags.GetBool("render")
	}
	if flags.Changed("robots") {
		cfg.Crawler.FollowRobotsTxt, _ = flags.GetBool("robots")
	}
	if flags.Changed("sitemap") {
		cfg.Crawler.UseSitemap, _ = flags.GetBool("sitemap")
	}
	if flags.Changed("format") {
		cfg.Export.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output") {
		cfg.Export.Path, _ = flags.GetString("output")
	}
	keywords, _ := flags.GetStringSlice("keyword")
	if len(keywords) == 0 {
		keywords = cfg.Keywords
	}

	format, err := reporter.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}
	crawlCfg, err := crawler.NewConfig(args[0], keywords, cfg.CrawlOptions()...)
	if err != nil {
		return err
	}

	httpFetcher := fetcher.NewHTTPFetcher(cfg.FetcherOptions(logger))
	var pages fetcher.Fetcher = httpFetcher
	var browser *fetcher.BrowserFetcher
	if cfg.Crawler.Render {
		browser = fetcher.NewBrowserFetcher(cfg.BrowserOptions(logger), httpFetcher)
		defer browser.Close()
		pages = browser
	}

	c, err := crawler.New(crawlCfg, pages,
		crawler.WithLogger(logger),
		crawler.WithSink(crawler.LogSink{Logger: logger}),
		crawler.WithSupportFetcher(httpFetcher),
	)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	ctx, stop := signalContext(c.Stop)
	defer stop()

	if browser != nil {
		if err := browser.Start(ctx); err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
	}

	result, err := c.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	summary := analyzer.New().Analyze(result, c.Resolver().Cache().Pairs())
	output := cfg.Export.Path
	if output == "" {
		output = reporter.DefaultFilename(format)
	}
	if err := writeReport(output, format, &reporter.Report{Summary: summary, Records: c.Records()}); err != nil {
		return err
	}

	fmt.Printf("Crawled %d pages from %s (%s): %d matches, saved to %s\n",
		result.PagesCrawled, result.Domain, result.State, len(result.Results), output)
	return nil
}

func writeReport(path string, format reporter.Format, report *reporter.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := reporter.New().WriteReport(f, report, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	r := resolver.New(fetcher.NewHTTPFetcher(cfg.FetcherOptions(logger)), resolver.Options{
		MaxDepth: cfg.Resolver.MaxDepth,
		Timeout:  cfg.Resolver.Timeout,
		Logger:   logger,
	})

	ctx, stop := signalContext(func() {})
	defer stop()

	trace := r.Trace(ctx, args[0])
	fmt.Println(trace.Start)
	for _, hop := range trace.Hops {
		fmt.Printf("  -> %s (%s)\n", hop.To, hop.Via)
	}
	switch {
	case trace.Err != nil:
		fmt.Printf("failed: %v\n", trace.Err)
	case trace.Cycle:
		fmt.Println("stopped: redirect cycle")
	case trace.Truncated:
		fmt.Println("stopped: depth limit reached")
	}
	fmt.Printf("final: %s\n", trace.Final)
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, _, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	c := classifier.New(cfg.Rules())
	for _, u := range args {
		reason := c.Explain(u)
		if reason == classifier.ReasonNone {
			fmt.Printf("%s\tno\n", u)
			continue
		}
		fmt.Printf("%s\tyes\t%s\n", u, reason)
	}
	return nil
}

func init() {
	// Crawl command flags
	crawlCmd.Flags().StringSliceP("keyword", "k", nil, "Keyword to search for (repeatable or comma-separated)")
	crawlCmd.Flags().Int("max-pages", crawler.DefaultMaxPages, "Maximum pages to crawl")
	crawlCmd.Flags().Int("workers", crawler.DefaultWorkers, "Pages processed concurrently")
	crawlCmd.Flags().Bool("render", false, "Render pages in a headless browser")
	crawlCmd.Flags().Bool("robots", false, "Respect robots.txt")
	crawlCmd.Flags().Bool("sitemap", false, "Seed the queue from sitemap.xml")
	crawlCmd.Flags().String("format", "csv", "Export format (csv, json, xlsx, markdown, html)")
	crawlCmd.Flags().StringP("output", "o", "", "Output file (default crawl_results.<ext>)")

	// Add commands to root
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(classifyCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress log output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

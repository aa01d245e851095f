package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codeshape/pkg/calendar"
	"github.com/Sumatoshi-tech/codeshape/pkg/config"
	"github.com/Sumatoshi-tech/codeshape/pkg/crawl"
	"github.com/Sumatoshi-tech/codeshape/pkg/metrics"
	"github.com/Sumatoshi-tech/codeshape/pkg/observability"
	"github.com/Sumatoshi-tech/codeshape/pkg/report"
	"github.com/Sumatoshi-tech/codeshape/pkg/resolver"
	"github.com/Sumatoshi-tech/codeshape/pkg/snapcache"
	"github.com/Sumatoshi-tech/codeshape/pkg/version"
	"github.com/Sumatoshi-tech/codeshape/pkg/worktree"
)

// ErrNoRepository is returned when neither an argument nor the config names a repository.
var ErrNoRepository = errors.New("no repository path: pass one as an argument or set repository.path")

// outputDirPerm is the permission of a created output directory.
const outputDirPerm = 0o755

// CrawlCommand holds the flags of the crawl command.
type CrawlCommand struct {
	root *rootOptions

	start        string
	outputDir    string
	branch       string
	cacheBackend string
	cachePath    string
	restore      bool
	summary      bool
}

func newCrawlCommand(root *rootOptions) *cobra.Command {
	cc := &CrawlCommand{root: root}

	cmd := &cobra.Command{
		Use:   "crawl [path]",
		Short: "Crawl a repository month by month and write a CSV report",
		Long: `Crawl walks the main line from the start date to today, one calendar month at a
time. Each month is resolved to the first main-line commit after it, checked out,
and measured. Resolutions are cached, so an interrupted crawl resumes quickly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: cc.run,
	}

	cmd.Flags().StringVar(&cc.start, "start", "", "Start date YYYY-MM-DD (default: date of the first commit)")
	cmd.Flags().StringVarP(&cc.outputDir, "output-dir", "o", "", "Directory for the report (default from config: .)")
	cmd.Flags().StringVar(&cc.branch, "branch", "", "Main line branch (default: main, then master)")
	cmd.Flags().StringVar(&cc.cacheBackend, "cache-backend", "", "Snapshot cache backend: sqlite, json")
	cmd.Flags().StringVar(&cc.cachePath, "cache-path", "", "Snapshot cache file")
	cmd.Flags().BoolVar(&cc.restore, "restore", true, "Check the main line out again when the crawl ends")
	cmd.Flags().BoolVar(&cc.summary, "summary", true, "Print a summary table of the report")

	return cmd
}

func (cc *CrawlCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := cc.config(cmd, args)
	if err != nil {
		return err
	}

	defs, err := cfg.Definitions()
	if err != nil {
		return err
	}

	start, err := cfg.Start()
	if err != nil {
		return err
	}

	obsCfg, err := cfg.ObservabilityConfig()
	if err != nil {
		return err
	}

	obsCfg.ServiceVersion = version.Version
	obsCfg.LogWriter = cmd.ErrOrStderr()

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	crawlMetrics, err := observability.NewCrawlMetrics(providers.Meter)
	if err != nil {
		return err
	}

	repo, err := cc.root.open(cfg.Repository.Path, cfg.Repository.MainBranch)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", cfg.Repository.Path, err)
	}
	defer repo.Close()

	store, err := snapcache.Open(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	err = os.MkdirAll(cfg.Crawl.OutputDir, outputDirPerm)
	if err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	outputPath := report.OutputPath(cfg.Crawl.OutputDir, cc.root.now())

	emitter, err := report.CreateCSV(outputPath)
	if err != nil {
		return err
	}

	logger := providers.Logger
	ctrl := worktree.NewController(repo, logger)

	driver := &crawl.Driver{
		Contributors: repo,
		Resolver:     resolver.New(store, repo, resolver.WithRestorer(ctrl), resolver.WithLogger(logger)),
		Controller:   ctrl,
		Extractor:    metrics.NewExtractor(logger),
		Emitter:      emitter,
		Definitions:  defs,
		Start:        start,
		Now:          cc.root.now,
		Logger:       logger,
		Tracer:       providers.Tracer,
		Metrics:      crawlMetrics,
	}

	stats, runErr := driver.Run(cmd.Context())

	closeErr := emitter.Close()

	if cc.restore {
		restoreErr := ctrl.RestoreMainLine(context.WithoutCancel(cmd.Context()))
		if restoreErr != nil {
			logger.Warn("could not restore main line", "error", restoreErr)
		}
	}

	status := cmd.ErrOrStderr()

	if runErr != nil {
		color.New(color.FgRed).Fprintf(status, "crawl aborted at %s after %d months; %s keeps the completed rows\n",
			calendar.Key(stats.Stop), stats.Months, outputPath)

		return errors.Join(runErr, closeErr)
	}

	if closeErr != nil {
		return closeErr
	}

	printCrawlSummary(status, stats, outputPath)

	if cc.summary && stats.Months > 0 {
		return printReportSummary(cmd.OutOrStdout(), outputPath, logger)
	}

	return nil
}

// config loads the config and applies the crawl flags and path argument.
func (cc *CrawlCommand) config(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := cc.root.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.Repository.Path = args[0]
	}

	if cfg.Repository.Path == "" {
		return nil, ErrNoRepository
	}

	flags := cmd.Flags()

	if flags.Changed("start") {
		cfg.Crawl.StartDate = cc.start
	}

	if flags.Changed("output-dir") {
		cfg.Crawl.OutputDir = cc.outputDir
	}

	if flags.Changed("branch") {
		cfg.Repository.MainBranch = cc.branch
	}

	if flags.Changed("cache-backend") {
		cfg.Cache.Backend = cc.cacheBackend
	}

	if flags.Changed("cache-path") {
		cfg.Cache.Path = cc.cachePath
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func printCrawlSummary(w io.Writer, stats crawl.Stats, outputPath string) {
	color.New(color.FgGreen).Fprintf(w, "Wrote %d months to %s in %s\n", stats.Months, outputPath, stats.ElapsedHuman())

	if stats.Failed > 0 {
		color.New(color.FgYellow).Fprintf(w, "  %d unreadable files were skipped\n", stats.Failed)
	}

	if stats.CaughtUp {
		color.New(color.FgCyan).Fprintf(w, "  caught up with the main line at %s\n", calendar.Key(stats.Stop))
	}
}

func printReportSummary(w io.Writer, path string, logger *slog.Logger) error {
	table, err := report.ReadCSVFile(path)
	if err != nil {
		logger.Warn("could not read report back for summary", "path", path, "error", err)

		return nil
	}

	_, err = fmt.Fprintln(w, report.SummaryTable(table))

	return err
}

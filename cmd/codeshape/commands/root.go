// Package commands implements CLI command handlers for codeshape.
package commands

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codeshape/pkg/config"
	"github.com/Sumatoshi-tech/codeshape/pkg/gitlib"
	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// Repository is an opened history with a working tree.
type Repository interface {
	vcs.History
	Close()
}

type repositoryOpener func(path, branch string) (Repository, error)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
	noColor    bool

	open repositoryOpener
	now  func() time.Time
}

// NewRootCommand creates the codeshape command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithDeps(openGitRepository, time.Now)
}

func newRootCommandWithDeps(open repositoryOpener, now func() time.Time) *cobra.Command {
	opts := &rootOptions{open: open, now: now}

	rootCmd := &cobra.Command{
		Use:   "codeshape",
		Short: "codeshape - month-by-month codebase composition history",
		Long: `codeshape walks the main line of a repository one calendar month at a time,
checks out the snapshot of each month and records file-group metrics as CSV rows.

Commands:
  crawl     Crawl a repository and write a monthly report
  plot      Render a report as HTML trend charts
  cache     Inspect the snapshot cache
  config    Print the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: .codeshape.yaml in CWD or $HOME)")
	flags.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.logJSON, "log-json", config.DefaultLogJSON, "Write logs as JSON")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newCrawlCommand(opts))
	rootCmd.AddCommand(newPlotCommand())
	rootCmd.AddCommand(newCacheCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))

	return rootCmd
}

// loadConfig loads the config file and applies the persistent flags that
// were set explicitly.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}

	if cmd.Flags().Changed("log-json") {
		cfg.Logging.JSON = o.logJSON
	}

	return cfg, nil
}

func openGitRepository(path, branch string) (Repository, error) {
	history, err := gitlib.NewHistory(path, branch)
	if err != nil {
		return nil, err
	}

	return history, nil
}

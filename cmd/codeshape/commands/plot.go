package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codeshape/pkg/report"
)

// plotFilePerm is the permission of a written plot page.
const plotFilePerm = 0o644

type plotOptions struct {
	output  string
	title   string
	summary bool
}

func newPlotCommand() *cobra.Command {
	po := &plotOptions{}

	cmd := &cobra.Command{
		Use:   "plot <report.csv>",
		Short: "Render a crawl report as HTML trend charts",
		Args:  cobra.ExactArgs(1),
		RunE:  po.run,
	}

	cmd.Flags().StringVarP(&po.output, "output", "o", "", "HTML output path (default: report path with .html)")
	cmd.Flags().StringVar(&po.title, "title", "", "Page title (default: report file name)")
	cmd.Flags().BoolVar(&po.summary, "summary", false, "Also print a summary table")

	return cmd
}

func (po *plotOptions) run(cmd *cobra.Command, args []string) (err error) {
	input := args[0]

	tbl, err := report.ReadCSVFile(input)
	if err != nil {
		return err
	}

	output := po.output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".html"
	}

	title := po.title
	if title == "" {
		title = "codeshape: " + filepath.Base(input)
	}

	file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, plotFilePerm)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	err = report.RenderPlot(file, tbl, title)
	if err != nil {
		return err
	}

	info, statErr := file.Stat()
	if statErr == nil {
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "Plotted %d months to %s (%s)\n",
			len(tbl.Rows), output, humanize.Bytes(uint64(info.Size())))
	}

	if po.summary {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), report.SummaryTable(tbl))
	}

	return err
}

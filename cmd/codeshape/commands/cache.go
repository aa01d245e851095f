package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codeshape/pkg/snapcache"
)

// ErrKeyNotCached is returned by cache get for a key with no usable value.
var ErrKeyNotCached = errors.New("key not in cache")

type cacheOptions struct {
	root    *rootOptions
	backend string
	path    string
}

func newCacheCommand(root *rootOptions) *cobra.Command {
	co := &cacheOptions{root: root}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the snapshot cache",
	}

	cmd.PersistentFlags().StringVar(&co.backend, "cache-backend", "", "Snapshot cache backend: sqlite, json")
	cmd.PersistentFlags().StringVar(&co.path, "cache-path", "", "Snapshot cache file")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached resolutions",
		Args:  cobra.NoArgs,
		RunE:  co.list,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one cached value (a YYYY-MM-DD key, initial_commit or initial_date)",
		Args:  cobra.ExactArgs(1),
		RunE:  co.get,
	})

	return cmd
}

func (co *cacheOptions) open(cmd *cobra.Command) (snapcache.Store, error) {
	cfg, err := co.root.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	backend, path := cfg.Cache.Backend, cfg.Cache.Path

	if cmd.Flags().Changed("cache-backend") {
		backend = co.backend
	}

	if cmd.Flags().Changed("cache-path") {
		path = co.path
	}

	return snapcache.Open(backend, path)
}

func (co *cacheOptions) list(cmd *cobra.Command, _ []string) error {
	store, err := co.open(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Entries(cmd.Context())
	if err != nil {
		return err
	}

	return writeEntries(cmd.OutOrStdout(), entries)
}

func writeEntries(w io.Writer, entries []snapcache.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "Cache is empty")

		return err
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Key", "Value", "Cached"})

	for _, entry := range entries {
		cached := ""
		if !entry.CreatedAt.IsZero() {
			cached = humanize.Time(entry.CreatedAt)
		}

		tbl.AppendRow(table.Row{entry.Key, entry.Value, cached})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d entries", len(entries)), ""})
	tbl.Render()

	return nil
}

func (co *cacheOptions) get(cmd *cobra.Command, args []string) error {
	store, err := co.open(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	value, found, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrKeyNotCached, args[0])
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), value)

	return err
}

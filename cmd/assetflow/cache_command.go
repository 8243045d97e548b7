package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetflow/internal/logging"
)

type cacheEntryJSON struct {
	Name       string    `json:"name"`
	Codec      string    `json:"codec"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	Hash       string    `json:"hash"`
	ETag       string    `json:"etag,omitempty"`
	Source     string    `json:"source,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local asset store",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context(), logging.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Entries(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				payload := make([]cacheEntryJSON, 0, len(entries))
				for _, e := range entries {
					payload = append(payload, cacheEntryJSON{
						Name:       e.Name,
						Codec:      e.Codec,
						Size:       e.Size,
						StoredSize: e.StoredSize,
						Hash:       e.Hash,
						ETag:       e.ETag,
						Source:     e.Source,
						UpdatedAt:  e.UpdatedAt.UTC(),
					})
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Store is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Name,
					e.Codec,
					humanize.IBytes(uint64(e.Size)),
					humanize.IBytes(uint64(e.StoredSize)),
					humanize.Time(e.UpdatedAt),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Name", "Codec", "Size", "Stored", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize store usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context(), logging.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"root":         store.Root(),
					"entries":      stats.Entries,
					"bytes":        stats.Bytes,
					"stored_bytes": stats.StoredBytes,
					"runtime":      stats.Runtime,
					"artifacts":    stats.Artifacts,
					"folders":      stats.Folders,
					"free_bytes":   stats.FreeBytes,
					"total_bytes":  stats.TotalBytes,
				})
			}

			rows := [][]string{
				{"Root", store.Root()},
				{"Entries", strconv.Itoa(stats.Entries)},
				{"Runtime codec", fmt.Sprintf("%d/%d (%s)", stats.Runtime, stats.Entries, store.RuntimeCodec())},
				{"Size", humanize.IBytes(uint64(stats.Bytes))},
				{"On disk", humanize.IBytes(uint64(stats.StoredBytes))},
				{"Artifacts", strconv.Itoa(stats.Artifacts)},
				{"Folders", strconv.Itoa(stats.Folders)},
				{"Free", humanize.IBytes(stats.FreeBytes)},
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

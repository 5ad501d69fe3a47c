package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/spf13/cobra"
)

func newBookmarksCommand(ctx *commandContext) *cobra.Command {
	var pathFilter string

	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "List stored bookmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.LoadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load bookmarks: %w", err)
			}

			rows := bookmarkRows(all, pathFilter)
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks stored")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Path", "Opened", "Lines read"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&pathFilter, "path", "p", "", "Only show bookmarks of this remote path")

	return cmd
}

// bookmarkRows sorts by path, then open time, newest instance last
func bookmarkRows(bookmarks []domain.Bookmark, pathFilter string) [][]string {
	sort.Slice(bookmarks, func(i, j int) bool {
		return bookmarks[i].Identity.Compare(bookmarks[j].Identity) < 0
	})

	rows := make([][]string, 0, len(bookmarks))
	for _, b := range bookmarks {
		if pathFilter != "" && b.Identity.Path != pathFilter {
			continue
		}
		rows = append(rows, []string{
			b.Identity.Path,
			b.Identity.OpenTime.Format(time.RFC3339),
			strconv.Itoa(b.Offset),
		})
	}
	return rows
}

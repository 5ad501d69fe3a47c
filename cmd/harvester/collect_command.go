package main

import (
	"fmt"
	"os"

	"github.com/SteelMorgan/rs2-log-harvester/internal/collector"
	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCollectCommand(ctx *commandContext) *cobra.Command {
	var pattern string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "collect <remote-dir> <destination>",
		Short: "Download whole remote files, newest first",
		Long: "Copy every file of a remote directory matching the pattern to a local\n" +
			"directory or storage URL (file://, mem://, s3://, gs://). Bookmarks are\n" +
			"neither read nor written.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			progress := !noProgress && isTerminal(os.Stderr)

			var result *collector.Result
			err := ctx.withSession(cmd.Context(), func(session ftpclient.Session) error {
				var err error
				result, err = collector.NewCollector(session, progress).Collect(cmd.Context(), collector.Request{
					Path:        args[0],
					Destination: args[1],
					Pattern:     pattern,
				})
				return err
			})

			if result != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Collected %d of %d files (%s)\n",
					len(result.Downloaded), result.Found, humanize.Bytes(uint64(result.Bytes)))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "*", "Shell glob of file names to download")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the download progress bar")

	return cmd
}

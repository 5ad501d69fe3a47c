package main

import (
	"errors"
	"fmt"

	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/service"
	"github.com/spf13/cobra"
)

func newPollCommand(ctx *commandContext) *cobra.Command {
	var paths []string
	var prefix bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch new lines from every tracked log once",
		Long: "Fetch each tracked log, print the lines appended since the last poll and\n" +
			"advance its bookmark. The last line of each file is held back until the\n" +
			"next poll because it may still be being written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				paths = cfg.LogPaths
			}
			if len(paths) == 0 {
				return errors.New("no log paths: set LOG_PATHS, the targets file or --path")
			}

			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			sink, err := ctx.openSink(cmd.Context(), cmd.OutOrStdout(), prefix || len(paths) > 1)
			if err != nil {
				return err
			}
			defer sink.Close()

			return ctx.withSession(cmd.Context(), func(session ftpclient.Session) error {
				resolver, err := ctx.newResolver(cmd.Context(), session, store)
				if err != nil {
					return err
				}
				h, err := service.NewHarvester(resolver, nil, sink, service.Options{LogPaths: paths})
				if err != nil {
					return err
				}

				report, err := h.PollOnce(cmd.Context())
				if err != nil {
					return fmt.Errorf("poll finished with %d failures: %w", report.Failures, err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "Remote log path (repeatable); overrides configured paths")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "Prefix every line with its remote path")

	return cmd
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/retention"
	"github.com/SteelMorgan/rs2-log-harvester/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var prefix bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll tracked logs on an interval and prune old files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(cfg.LogPaths) == 0 && !cfg.PruneEnabled {
				return errors.New("nothing to do: no log paths and pruning disabled")
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := ctx.openStore(runCtx)
			if err != nil {
				return err
			}
			defer store.Close()

			sink, err := ctx.openSink(runCtx, cmd.OutOrStdout(), prefix || len(cfg.LogPaths) > 1)
			if err != nil {
				return err
			}
			defer sink.Close()

			log.Info().
				Str("version", version).
				Str("host", cfg.FTPHost).
				Msg("Starting harvester")

			err = ctx.withSession(runCtx, func(session ftpclient.Session) error {
				resolver, err := ctx.newResolver(runCtx, session, store)
				if err != nil {
					return err
				}
				h, err := service.NewHarvester(resolver, retention.NewPruner(session), sink, service.Options{
					LogPaths:      cfg.LogPaths,
					PollInterval:  cfg.PollInterval,
					PruneEnabled:  cfg.PruneEnabled,
					PruneInterval: cfg.PruneInterval,
					PruneRules:    cfg.PruneRules,
				})
				if err != nil {
					return err
				}
				return h.Run(runCtx)
			})

			// Shutdown by signal is a clean exit
			if errors.Is(err, context.Canceled) && cmd.Context().Err() == nil {
				log.Info().Msg("Harvester stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&prefix, "prefix", false, "Prefix every line with its remote path")

	return cmd
}

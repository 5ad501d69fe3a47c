package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/config"
	"github.com/SteelMorgan/rs2-log-harvester/internal/ftpclient"
	"github.com/SteelMorgan/rs2-log-harvester/internal/retention"
	"github.com/spf13/cobra"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var remotePath string
	var pattern string
	var days int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete remote files older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rules := cfg.PruneRules
			if remotePath != "" {
				rule := config.PruneRule{Path: remotePath, Pattern: pattern, RetentionDays: days}
				if err := rule.Validate(); err != nil {
					return err
				}
				rules = []config.PruneRule{rule}
			}
			if len(rules) == 0 {
				return errors.New("no prune rules: set PRUNE_PATH, the targets file or --path")
			}

			var rows [][]string
			var errs []error
			err = ctx.withSession(cmd.Context(), func(session ftpclient.Session) error {
				pruner := retention.NewPruner(session)
				for _, rule := range rules {
					result, err := pruner.Prune(cmd.Context(), retention.Request{
						Path:      rule.Path,
						OlderThan: time.Now().Add(-rule.Retention()),
						Pattern:   rule.Pattern,
						DryRun:    dryRun,
					})
					if errors.Is(err, ftpclient.ErrConnect) || errors.Is(err, ftpclient.ErrAuth) {
						return err
					}
					if err != nil {
						errs = append(errs, fmt.Errorf("prune %s: %w", rule.Path, err))
					}
					if result != nil {
						rows = append(rows, pruneRow(rule, result, dryRun))
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			if len(rows) > 0 {
				headers := []string{"Path", "Pattern", "Days", "Examined", "Deleted", "Warnings", "Failures"}
				if dryRun {
					headers[4] = "Would delete"
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}))
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVarP(&remotePath, "path", "p", "", "Remote directory; overrides configured prune rules")
	cmd.Flags().StringVar(&pattern, "pattern", retention.DefaultPattern, "Shell glob of file names to delete")
	cmd.Flags().IntVar(&days, "days", int(retention.DefaultRetention/(24*time.Hour)), "Retention window in days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List candidates without deleting")

	return cmd
}

func pruneRow(rule config.PruneRule, result *retention.Result, dryRun bool) []string {
	removed := len(result.Deleted)
	if dryRun {
		removed = len(result.Candidates)
	}
	return []string{
		rule.Path,
		rule.Pattern,
		strconv.Itoa(rule.RetentionDays),
		strconv.Itoa(result.Examined),
		strconv.Itoa(removed),
		strconv.Itoa(result.Warnings),
		strconv.Itoa(len(result.Failures)),
	}
}

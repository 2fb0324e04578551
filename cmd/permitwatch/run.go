package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"permitwatch/internal/browser"
	"permitwatch/internal/config"
	"permitwatch/internal/diag"
	"permitwatch/internal/scrape"
	"permitwatch/internal/store"
)

var targetDate string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape the portal for one issued date and persist the results",
	Long: `run performs one full pipeline pass: login, issued-date search,
pagination, normalization, classification, and persistence. The default
target date is yesterday in the portal's timezone; credentials come from
` + config.EnvUser + ` and ` + config.EnvPass + `.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, err := config.LoadCredentials()
		if err != nil {
			return err
		}

		date := targetDate
		if date == "" {
			date, err = defaultTargetDate(cfg.Portal)
			if err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sink, err := diag.NewFileSink(cfg.Diagnostics.Dir, cfg.Diagnostics.MaxCaptures, logger)
		if err != nil {
			return err
		}

		db, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		sinks := []scrape.RecordSink{db}
		if cfg.Store.ExportDir != "" {
			sinks = append(sinks, store.NewFileExporter(cfg.Store.ExportDir, logger))
		}

		engine := browser.NewManager(cfg.Browser, logger)
		pipeline := scrape.NewPipeline(cfg, engine, sink, logger, sinks...)

		summary, err := pipeline.Run(ctx, creds, date)
		if err != nil {
			return err
		}

		fmt.Printf("run %s: %d records for %s (rows %d, partial %v, %s)\n",
			summary.RunID, summary.Records, summary.QueryDate,
			summary.RowsSeen, summary.Partial, summary.Elapsed.Round(time.Millisecond))
		for _, tier := range []string{"A", "B", "C", "D"} {
			fmt.Printf("  tier %s: %d\n", tier, summary.TierCounts[tier])
		}
		if summary.Partial {
			logger.Warn("run ended early, results are a partial snapshot",
				zap.String("run_id", summary.RunID))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&targetDate, "date", "", "issued date to search (portal format, default: yesterday)")
	rootCmd.AddCommand(runCmd)
}

// defaultTargetDate is yesterday in the portal's timezone, formatted in its
// native date layout. Permits issued today are usually still incomplete on
// the portal side.
func defaultTargetDate(portal config.PortalConfig) (string, error) {
	loc, err := time.LoadLocation(portal.Timezone)
	if err != nil {
		return "", fmt.Errorf("load portal timezone %q: %w", portal.Timezone, err)
	}
	return time.Now().In(loc).AddDate(0, 0, -1).Format(portal.DateFormat), nil
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drishti-labs/drishti-cli/internal/export"
	"github.com/drishti-labs/drishti-cli/internal/store"
)

var (
	exportOut          string
	exportCriticalOnly bool
	exportRunID        string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the scored-region artifact from a persisted run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runID := exportRunID
		if runID == "" {
			latest, err := st.LatestRun(ctx, store.RunStatusComplete)
			if err != nil {
				return eris.Wrap(err, "no complete run to export")
			}
			runID = latest.ID
		}

		regions, err := st.GetRegions(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "load regions")
		}
		if len(regions) == 0 {
			return eris.Errorf("run %s has no scored regions", runID)
		}

		out := cfg.Output.Path
		if exportOut != "" {
			out = exportOut
		}
		if err := export.WriteCSV(out, regions, exportCriticalOnly || cfg.Output.CriticalOnly); err != nil {
			return eris.Wrap(err, "export")
		}

		zap.L().Info("export complete", zap.String("run_id", runID), zap.String("path", out))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "artifact path (overrides config)")
	exportCmd.Flags().BoolVar(&exportCriticalOnly, "critical-only", false, "export only CRITICAL regions")
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run ID (defaults to latest complete run)")
	rootCmd.AddCommand(exportCmd)
}

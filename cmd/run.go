package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drishti-labs/drishti-cli/internal/pipeline"
)

var (
	runDataDir       string
	runOut           string
	runContamination float64
	runCriticalOnly  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full audit pipeline over the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dataDir := cfg.Data.Dir
		if runDataDir != "" {
			dataDir = runDataDir
		}
		out := cfg.Output.Path
		if runOut != "" {
			out = runOut
		}

		p := pipeline.New(st)
		result, err := p.Run(ctx, pipeline.Options{
			DataDir:      dataDir,
			OutputPath:   out,
			SeriesPath:   cfg.Output.SeriesPath,
			CriticalOnly: runCriticalOnly || cfg.Output.CriticalOnly,
			ModelID:      cfg.Model.ID,
			Forest:       forestConfig(runContamination),
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("audit complete",
			zap.String("run_id", result.RunID),
			zap.Int("regions", result.Regions),
			zap.Int("critical", result.Critical),
			zap.String("artifact", result.Artifact),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "directory of raw source files (overrides config)")
	runCmd.Flags().StringVar(&runOut, "out", "", "output artifact path (overrides config)")
	runCmd.Flags().Float64Var(&runContamination, "contamination", 0, "expected outlier fraction in (0,1)")
	runCmd.Flags().BoolVar(&runCriticalOnly, "critical-only", false, "export only CRITICAL regions")
	rootCmd.AddCommand(runCmd)
}

package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drishti-labs/drishti-cli/internal/attrib"
	"github.com/drishti-labs/drishti-cli/internal/audit"
	"github.com/drishti-labs/drishti-cli/internal/pipeline"
	"github.com/drishti-labs/drishti-cli/internal/store"
)

var scoreContamination float64

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Re-score the latest run's feature vectors at a new contamination",
	Long:  "Loads the feature vectors persisted by the most recent complete run, refits the detector at the given contamination, recomputes attributions, and records the result as a new run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		latest, err := st.LatestRun(ctx, store.RunStatusComplete)
		if err != nil {
			return eris.Wrap(err, "no complete run to re-score")
		}
		regions, err := st.GetRegions(ctx, latest.ID)
		if err != nil {
			return eris.Wrap(err, "load regions")
		}

		vectors := make([]audit.FeatureVector, len(regions))
		for i, r := range regions {
			vectors[i] = r.FeatureVector
		}

		fc := forestConfig(scoreContamination)
		scored, model, err := pipeline.Score(ctx, vectors, fc)
		if err != nil {
			return eris.Wrap(err, "score")
		}

		factors, err := attrib.Attribute(model, vectors)
		if err != nil {
			return eris.Wrap(err, "attribute")
		}

		critical := 0
		for i := range scored {
			scored[i].PrimaryRiskFactor = factors[scored[i].Pincode]
			if scored[i].AnomalyLabel == audit.LabelCritical {
				critical++
			}
		}

		run, err := st.CreateRun(ctx, fc.Contamination)
		if err != nil {
			return eris.Wrap(err, "create run")
		}
		if err := st.SaveRegions(ctx, run.ID, scored); err != nil {
			return eris.Wrap(err, "persist regions")
		}

		blob, err := model.Save()
		if err != nil {
			return eris.Wrap(err, "serialize model")
		}
		if err := st.SaveModel(ctx, cfg.Model.ID, blob); err != nil {
			return eris.Wrap(err, "persist model")
		}
		if err := st.FinishRun(ctx, run.ID, store.RunStatusComplete, len(scored), critical, ""); err != nil {
			return eris.Wrap(err, "finish run")
		}

		zap.L().Info("re-score complete",
			zap.String("run_id", run.ID),
			zap.Float64("contamination", fc.Contamination),
			zap.Int("regions", len(scored)),
			zap.Int("critical", critical),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":   run.ID,
			"regions":  len(scored),
			"critical": critical,
		})
	},
}

func init() {
	scoreCmd.Flags().Float64Var(&scoreContamination, "contamination", 0, "expected outlier fraction in (0,1)")
	rootCmd.AddCommand(scoreCmd)
}

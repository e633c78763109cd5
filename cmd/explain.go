package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/drishti-labs/drishti-cli/internal/attrib"
	"github.com/drishti-labs/drishti-cli/internal/audit"
	"github.com/drishti-labs/drishti-cli/internal/forest"
	"github.com/drishti-labs/drishti-cli/internal/store"
)

func featureName(i int) string { return audit.FeatureNames[i] }

var explainPincode string

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Recompute per-feature attributions from the persisted model",
	Long:  "Loads the persisted isolation forest and the latest run's regions, and prints per-feature contributions without retraining. With --pincode, explains a single region.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		blob, err := st.GetModel(ctx, cfg.Model.ID)
		if err != nil {
			return eris.Wrap(err, "load model")
		}
		model, err := forest.Load(blob)
		if err != nil {
			return eris.Wrap(err, "decode model")
		}

		latest, err := st.LatestRun(ctx, store.RunStatusComplete)
		if err != nil {
			return eris.Wrap(err, "no complete run to explain")
		}
		regions, err := st.GetRegions(ctx, latest.ID)
		if err != nil {
			return eris.Wrap(err, "load regions")
		}

		type explanation struct {
			Pincode           string             `json:"pincode"`
			AnomalyLabel      string             `json:"anomaly_label"`
			AnomalyScore      float64            `json:"anomaly_score"`
			Contributions     map[string]float64 `json:"contributions"`
			PrimaryRiskFactor string             `json:"primary_risk_factor"`
		}

		var out []explanation
		for _, r := range regions {
			if explainPincode != "" && r.Pincode != explainPincode {
				continue
			}
			vals := r.Values()
			contrib, err := attrib.Contributions(model, vals[:])
			if err != nil {
				return eris.Wrapf(err, "explain %s", r.Pincode)
			}
			byName := make(map[string]float64, len(contrib))
			for i, v := range contrib {
				byName[featureName(i)] = v
			}
			out = append(out, explanation{
				Pincode:           r.Pincode,
				AnomalyLabel:      string(r.AnomalyLabel),
				AnomalyScore:      r.AnomalyScore,
				Contributions:     byName,
				PrimaryRiskFactor: attrib.Primary(contrib),
			})
		}

		if explainPincode != "" && len(out) == 0 {
			return eris.Errorf("pincode %s not found in run %s", explainPincode, latest.ID)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainPincode, "pincode", "", "explain a single region")
	rootCmd.AddCommand(explainCmd)
}

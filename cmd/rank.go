package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

var rankFeaturesFlag string
var rankTopKFlag int
var rankModelFlag string

// rankCmd represents the rank command.
var rankCmd = newRankCmd()

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank nets by Trojan insertion suitability",
		Long: `Score every net in a previously computed feature table and write the
top-K candidates to <output>/target_nets.json. Scoring uses the trained
model configured via --model, or a testability heuristic when no model is
configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outDir := viper.GetString(outputFlagName)
			if err := netlistFS.EnsureDir(m.Path(outDir)); err != nil {
				return err
			}

			features := rankFeaturesFlag
			if features == "" {
				features = filepath.Join(outDir, domain.FeaturesFileName)
			}

			scoring, err := loadScoringModel()
			if err != nil {
				return err
			}

			_, err = workflow.Rank(cmd.Context(), domain.RankArgs{
				FeaturesIn: m.Path(features),
				RankingOut: m.Path(filepath.Join(outDir, domain.RankingFileName)),
				TopK:       viper.GetInt(topKConfigKey),
				Model:      scoring,
			})

			return err
		},
	}

	configureRankFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(rankCmd)
}

func configureRankFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rankFeaturesFlag, featuresFlagName, "", "feature table to rank (default <output>/"+domain.FeaturesFileName+")")

	cmd.Flags().IntVarP(&rankTopKFlag, topKFlagName, "k", viper.GetInt(topKConfigKey), "number of candidate nets to keep (0 keeps all)")
	bindFlagToConfig(cmd.Flags().Lookup(topKFlagName), topKConfigKey)

	cmd.Flags().StringVar(&rankModelFlag, modelFlagName, viper.GetString(modelConfigKey), "YAML weights file for the trained scoring model")
	bindFlagToConfig(cmd.Flags().Lookup(modelFlagName), modelConfigKey)
}

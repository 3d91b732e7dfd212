package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

var analyzeSampleRateFlag float64
var analyzeParallelFlag int

// analyzeCmd represents the analyze command.
var analyzeCmd = newAnalyzeCmd()

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <netlist.v>",
		Short: "Compute SCOAP testability features for every net",
		Long: `Parse a gate-level Verilog netlist, levelize the circuit graph and compute
controllability/observability features for every net. The feature table is
written to <output>/features.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := viper.GetString(outputFlagName)
			if err := netlistFS.EnsureDir(m.Path(outDir)); err != nil {
				return err
			}

			_, err := workflow.Analyze(cmd.Context(), domain.AnalyzeArgs{
				Netlist:      m.Path(args[0]),
				FeaturesOut:  m.Path(filepath.Join(outDir, domain.FeaturesFileName)),
				Strict:       viper.GetBool(strictConfigKey),
				Hierarchical: viper.GetBool(hierarchicalConfigKey),
				SampleRate:   viper.GetFloat64(sampleRateConfigKey),
				Parallelism:  viper.GetInt(parallelConfigKey),
			})

			return err
		},
	}

	configureAnalyzeFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func configureAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&analyzeSampleRateFlag, sampleRateFlagName, viper.GetFloat64(sampleRateConfigKey), "fraction of internal nets to keep in the feature table (boundary nets always kept)")
	bindFlagToConfig(cmd.Flags().Lookup(sampleRateFlagName), sampleRateConfigKey)

	cmd.Flags().IntVarP(&analyzeParallelFlag, parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of parallel workers per circuit level")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelConfigKey)
}

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

var runNumFlag int
var runSeedFlag int64
var runTopKFlag int
var runModelFlag string
var runSampleRateFlag float64
var runDisjointFlag bool
var runCounterWidthFlag int
var runParallelFlag int

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <netlist.v>",
		Short: "Run the full analyze, rank and insert pipeline",
		Long: `Run all stages against a netlist: feature extraction, candidate ranking
and Trojan insertion. All artifacts land in the output directory:

  features.json            per-net SCOAP features
  target_nets.json         ranked candidate nets
  trojaned_netlists/       one Verilog copy per inserted Trojan
  pipeline_summary.json    what ran and where the artifacts are`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scoring, err := loadScoringModel()
			if err != nil {
				return err
			}

			_, err = workflow.Run(cmd.Context(), domain.RunArgs{
				Netlist:      m.Path(args[0]),
				OutputDir:    m.Path(viper.GetString(outputFlagName)),
				NumTrojans:   viper.GetInt(numTrojansConfigKey),
				TopK:         viper.GetInt(topKConfigKey),
				Seed:         viper.GetInt64(seedConfigKey),
				Model:        scoring,
				Disjoint:     viper.GetBool(disjointConfigKey),
				CounterWidth: viper.GetInt(counterWidthConfigKey),
				Parallelism:  viper.GetInt(parallelConfigKey),
				Strict:       viper.GetBool(strictConfigKey),
				Hierarchical: viper.GetBool(hierarchicalConfigKey),
				SampleRate:   viper.GetFloat64(sampleRateConfigKey),
			})

			return err
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runNumFlag, numTrojansFlagName, "n", viper.GetInt(numTrojansConfigKey), "number of Trojaned netlist copies to generate")
	bindFlagToConfig(cmd.Flags().Lookup(numTrojansFlagName), numTrojansConfigKey)

	cmd.Flags().Int64Var(&runSeedFlag, seedFlagName, viper.GetInt64(seedConfigKey), "master seed for reproducible Trojan synthesis")
	bindFlagToConfig(cmd.Flags().Lookup(seedFlagName), seedConfigKey)

	cmd.Flags().IntVarP(&runTopKFlag, topKFlagName, "k", viper.GetInt(topKConfigKey), "candidate pool size (0 derives it from --num)")
	bindFlagToConfig(cmd.Flags().Lookup(topKFlagName), topKConfigKey)

	cmd.Flags().StringVar(&runModelFlag, modelFlagName, viper.GetString(modelConfigKey), "YAML weights file for the trained scoring model")
	bindFlagToConfig(cmd.Flags().Lookup(modelFlagName), modelConfigKey)

	cmd.Flags().Float64Var(&runSampleRateFlag, sampleRateFlagName, viper.GetFloat64(sampleRateConfigKey), "fraction of internal nets to keep in the feature table")
	bindFlagToConfig(cmd.Flags().Lookup(sampleRateFlagName), sampleRateConfigKey)

	cmd.Flags().BoolVar(&runDisjointFlag, disjointFlagName, viper.GetBool(disjointConfigKey), "forbid two Trojans from sharing trigger or payload nets")
	bindFlagToConfig(cmd.Flags().Lookup(disjointFlagName), disjointConfigKey)

	cmd.Flags().IntVar(&runCounterWidthFlag, counterWidthFlagName, viper.GetInt(counterWidthConfigKey), "bit width of counter-based triggers (2-63)")
	bindFlagToConfig(cmd.Flags().Lookup(counterWidthFlagName), counterWidthConfigKey)

	cmd.Flags().IntVarP(&runParallelFlag, parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of parallel workers")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelConfigKey)
}

package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

var insertRankingFlag string
var insertNumFlag int
var insertSeedFlag int64
var insertDisjointFlag bool
var insertCounterWidthFlag int
var insertParallelFlag int

// insertCmd represents the insert command.
var insertCmd = newInsertCmd()

func newInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <netlist.v>",
		Short: "Insert Trojans into a netlist using a precomputed ranking",
		Long: `Synthesize Trojan circuits against the ranked candidate nets and write
one Trojaned copy of the netlist per insertion, plus
insertion_metadata.json describing every inserted Trojan. The same seed
always produces byte-identical netlists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := viper.GetString(outputFlagName)

			ranking := insertRankingFlag
			if ranking == "" {
				ranking = filepath.Join(outDir, domain.RankingFileName)
			}

			_, err := workflow.Insert(cmd.Context(), domain.InsertArgs{
				Netlist:      m.Path(args[0]),
				RankingIn:    m.Path(ranking),
				OutputDir:    m.Path(filepath.Join(outDir, domain.TrojanedDirName)),
				NumTrojans:   viper.GetInt(numTrojansConfigKey),
				Seed:         viper.GetInt64(seedConfigKey),
				Disjoint:     viper.GetBool(disjointConfigKey),
				CounterWidth: viper.GetInt(counterWidthConfigKey),
				Parallelism:  viper.GetInt(parallelConfigKey),
				Strict:       viper.GetBool(strictConfigKey),
				Hierarchical: viper.GetBool(hierarchicalConfigKey),
			})

			return err
		},
	}

	configureInsertFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(insertCmd)
}

func configureInsertFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&insertRankingFlag, rankingFlagName, "", "ranking artifact to draw targets from (default <output>/"+domain.RankingFileName+")")

	cmd.Flags().IntVarP(&insertNumFlag, numTrojansFlagName, "n", viper.GetInt(numTrojansConfigKey), "number of Trojaned netlist copies to generate")
	bindFlagToConfig(cmd.Flags().Lookup(numTrojansFlagName), numTrojansConfigKey)

	cmd.Flags().Int64Var(&insertSeedFlag, seedFlagName, viper.GetInt64(seedConfigKey), "master seed for reproducible Trojan synthesis")
	bindFlagToConfig(cmd.Flags().Lookup(seedFlagName), seedConfigKey)

	cmd.Flags().BoolVar(&insertDisjointFlag, disjointFlagName, viper.GetBool(disjointConfigKey), "forbid two Trojans from sharing trigger or payload nets")
	bindFlagToConfig(cmd.Flags().Lookup(disjointFlagName), disjointConfigKey)

	cmd.Flags().IntVar(&insertCounterWidthFlag, counterWidthFlagName, viper.GetInt(counterWidthConfigKey), "bit width of counter-based triggers (2-63)")
	bindFlagToConfig(cmd.Flags().Lookup(counterWidthFlagName), counterWidthConfigKey)

	cmd.Flags().IntVarP(&insertParallelFlag, parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of insertions generated in parallel")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelConfigKey)
}

// Package cmd provides the root command and CLI setup for trojanforge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hwsec-lab/trojanforge/internal/adapter"
	"github.com/hwsec-lab/trojanforge/internal/controller"
	"github.com/hwsec-lab/trojanforge/internal/domain"
	m "github.com/hwsec-lab/trojanforge/internal/model"
)

var netlistFS adapter.NetlistFS
var artifactStore adapter.ArtifactStore
var workflow domain.Workflow
var ui controller.UI

// outputDirFlag is a root-level flag shared by commands that write artifacts.
var outputDirFlag string

// verboseFlag raises the log level to debug.
var verboseFlag bool

// strictFlag makes unsupported constructs fatal instead of warnings.
var strictFlag bool

// hierarchicalFlag keeps unresolved submodules as opaque cells instead of
// flattening them.
var hierarchicalFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewConsoleUI(rootCmd)
	netlistFS = adapter.NewLocalNetlistFS()
	artifactStore = adapter.NewJSONArtifactStore()
	workflow = domain.NewWorkflow(netlistFS, artifactStore, ui)
}

const rootLongDescription = `TrojanForge generates hardware-Trojan benchmark netlists for detection
research. It parses a gate-level Verilog netlist, computes SCOAP
testability features for every net, ranks nets by how well a stealthy
Trojan could hide on them, and emits Trojaned copies of the netlist
together with ground-truth metadata.

Typical use is the full pipeline:

  trojanforge run design.v -n 20 -o out/

Individual stages (analyze, rank, insert) can also run standalone against
the JSON artifacts of a previous stage.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trojanforge",
		Short: "Hardware Trojan benchmark generator",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), verboseFlag || viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&outputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for generated artifacts",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "enable debug logging")

	cmd.PersistentFlags().BoolVar(&strictFlag, strictFlagName, viper.GetBool(strictConfigKey), "fail on unsupported netlist constructs instead of warning")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(strictFlagName), strictConfigKey)

	cmd.PersistentFlags().BoolVar(&hierarchicalFlag, hierarchicalFlagName, viper.GetBool(hierarchicalConfigKey), "treat unresolved submodules as opaque cells instead of flattening")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(hierarchicalFlagName), hierarchicalConfigKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// loadScoringModel resolves the configured model weights file, or nil when
// none is configured so the heuristic fallback applies.
func loadScoringModel() (domain.ScoringModel, error) {
	path := viper.GetString(modelConfigKey)
	if path == "" {
		return nil, nil
	}

	return adapter.LoadLinearModel(m.Path(path))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// Package cli implements the donsched command: replaying scheduler
// scenarios, running lottery trials and inspecting recorded traces.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/donsched"
	"github.com/tomasbasham/donsched/internal/config"
	"github.com/tomasbasham/donsched/internal/logging"
	"github.com/tomasbasham/donsched/internal/scenario"
)

// app carries the state shared by every subcommand, filled in before any of
// them runs.
type app struct {
	configPath string
	debug      bool
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger *slog.Logger
}

// defaultConfig returns the default config path, checking DONSCHED_CONFIG
// first.
func defaultConfig() string {
	if p := os.Getenv("DONSCHED_CONFIG"); p != "" {
		return p
	}
	return "donsched.yaml"
}

// NewRootCmd creates the root cobra command for the donsched CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "donsched",
		Short: "Priority donation scheduler workbench",
		Long: `donsched replays scripted wait queue scenarios against the priority
donation scheduler, checks their expectations, and records what happened.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = a.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = a.logFormat
			}
			if a.debug {
				cfg.LogLevel = "debug"
			}

			a.cfg = cfg
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfig(), "Config file (or DONSCHED_CONFIG env)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(a),
		newTrialsCmd(a),
		newTraceCmd(a),
	)

	return root
}

// scenarioFlags are the overrides shared by run and trials.
type scenarioFlags struct {
	policy string
	seed   uint64
}

func (f *scenarioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.policy, "policy", "", "Scheduling policy (priority, lottery); overrides the scenario")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Lottery seed; overrides the scenario")
}

// load reads a scenario and settles its policy and seed. Flags win over the
// scenario, which wins over the config file.
func (a *app) load(cmd *cobra.Command, path string, f *scenarioFlags) (*scenario.Scenario, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}

	switch {
	case cmd.Flags().Changed("policy"):
		sc.Policy = f.policy
	case sc.Policy == "":
		sc.Policy = a.cfg.Policy
	}
	if !donsched.ParsePolicy(sc.Policy).IsValid() {
		return nil, fmt.Errorf("unknown policy %q", sc.Policy)
	}

	switch {
	case cmd.Flags().Changed("seed"):
		sc.Seed = f.seed
	case sc.Seed == 0:
		sc.Seed = a.cfg.Seed
	}
	return sc, nil
}

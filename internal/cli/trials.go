package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/donsched"
)

func newTrialsCmd(a *app) *cobra.Command {
	var (
		flags   scenarioFlags
		n       int
		workers int
	)

	cmd := &cobra.Command{
		Use:   "trials <scenario>",
		Short: "Run a scenario many times and tally who wins each next step",
		Long: `Runs n copies of a scenario, trial i seeded with the scenario seed plus i,
and prints how often each thread won every next step. Useful to check that
lottery odds follow the tickets held.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.load(cmd, args[0], &flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Workers
			}

			a.logger.Info("running trials", "name", sc.Name, "policy", sc.Policy, "trials", n, "workers", workers)
			tally, err := sc.RunTrials(cmd.Context(), n, workers, donsched.WithLogger(a.logger))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-6s  %-20s  %10s  %s\n", "STEP", "THREAD", "WINS", "SHARE")
			fmt.Fprintf(out, "%-6s  %-20s  %10s  %s\n", "----", "------", "----", "-----")
			for _, w := range tally.Wins {
				fmt.Fprintf(out, "%-6d  %-20s  %10s  %.4f\n",
					w.Step, w.Thread, humanize.Comma(w.Count), tally.Share(w.Step, w.Thread))
			}

			if tally.Failed > 0 {
				fmt.Fprintf(out, "\n%d of %d trials had failed steps\n", tally.Failed, tally.Trials)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&n, "trials", "n", 1000, "Number of trials")
	cmd.Flags().IntVar(&workers, "workers", 4, "Trials run in parallel (default from config)")

	return cmd
}

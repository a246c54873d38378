package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/donsched"
	"github.com/tomasbasham/donsched/internal/trace"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		flags   scenarioFlags
		traceDB string
	)

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Replay a scenario and check its expectations",
		Long: `Replays every step of a scenario file against a fresh scheduler and
reports each step that did not behave as expected. The command fails if any
step failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sc, err := a.load(cmd, args[0], &flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("trace") {
				traceDB = a.cfg.TraceDB
			}

			opts := []donsched.Option{donsched.WithLogger(a.logger)}

			var rec *trace.Recorder
			if traceDB != "" {
				st, err := trace.Open(traceDB, a.logger)
				if err != nil {
					return err
				}
				defer st.Close()

				if err := st.Migrate(ctx); err != nil {
					return err
				}
				rec, err = st.NewRun(ctx, sc.Name, donsched.ParsePolicy(sc.Policy), sc.Seed)
				if err != nil {
					return err
				}
				opts = append(opts, donsched.WithEventHook(rec))
			}

			a.logger.Info("running scenario", "name", sc.Name, "policy", sc.Policy, "seed", sc.Seed, "steps", len(sc.Steps))
			res, err := sc.Run(ctx, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, st := range res.Steps {
				switch {
				case st.Failed():
					fmt.Fprintf(out, "step %d %s: FAIL %s\n", st.Index, st.Op, st.Failure)
				case st.Winner != "":
					fmt.Fprintf(out, "step %d %s: %s\n", st.Index, st.Op, st.Winner)
				}
			}

			if rec != nil {
				if err := rec.Err(); err != nil {
					return err
				}
				fmt.Fprintf(out, "trace: %s run %s\n", traceDB, rec.RunID())
			}

			failed := len(res.Failures())
			if failed > 0 {
				return fmt.Errorf("%s: %d of %d steps failed", sc.Name, failed, len(res.Steps))
			}
			fmt.Fprintf(out, "%s: %d steps passed\n", sc.Name, len(res.Steps))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&traceDB, "trace", "", "Record events into this SQLite database")

	return cmd
}

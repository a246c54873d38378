package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/donsched/internal/trace"
)

func newTraceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <db> [run-id]",
		Short: "List recorded runs, or the events of one run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := trace.Open(args[0], a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				runs, err := st.Runs(ctx)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded.")
					return nil
				}

				fmt.Fprintf(out, "%-36s  %-20s  %-8s  %-20s  %8s  %s\n", "ID", "NAME", "POLICY", "SEED", "EVENTS", "STARTED")
				fmt.Fprintf(out, "%-36s  %-20s  %-8s  %-20s  %8s  %s\n", "--", "----", "------", "----", "------", "-------")
				for _, r := range runs {
					fmt.Fprintf(out, "%-36s  %-20s  %-8s  %-20d  %8s  %s\n",
						r.ID, r.Name, r.Policy, r.Seed, humanize.Comma(int64(r.Events)), humanize.Time(r.StartedAt))
				}
				return nil
			}

			events, err := st.Events(ctx, args[1])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return fmt.Errorf("no events for run %s", args[1])
			}
			fmt.Fprintf(out, "%6s  %-8s  %6s  %6s  %s\n", "SEQ", "KIND", "QUEUE", "THREAD", "DETAIL")
			fmt.Fprintf(out, "%6s  %-8s  %6s  %6s  %s\n", "---", "----", "-----", "------", "------")
			for _, e := range events {
				fmt.Fprintf(out, "%6d  %-8s  %6s  %6s  %s\n", e.Seq, e.Kind, id(int64(e.Queue)), id(int64(e.Thread)), detail(e))
			}
			return nil
		},
	}

	return cmd
}

func id(v int64) string {
	if v < 0 {
		return "-"
	}
	return fmt.Sprint(v)
}

func detail(e trace.Event) string {
	if e.Kind == trace.KindPriority {
		return fmt.Sprintf("%d -> %d", e.From, e.To)
	}
	return ""
}

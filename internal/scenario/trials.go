package scenario

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/llxisdsh/pb"
	"golang.org/x/sync/errgroup"

	"github.com/tomasbasham/donsched"
)

type winKey struct {
	step   int
	thread string
}

// Win is how often a thread won a next step across trials.
type Win struct {
	Step   int
	Thread string
	Count  int64
}

// Tally aggregates the winners of next steps over many seeded runs.
type Tally struct {
	Trials int

	// Failed is the number of trials with at least one failed step.
	Failed int

	// Wins is ordered by step, then by descending count, then by name.
	Wins []Win
}

// Share returns the fraction of trials in which thread won the given step.
func (t *Tally) Share(step int, thread string) float64 {
	if t.Trials == 0 {
		return 0
	}
	for _, w := range t.Wins {
		if w.Step == step && w.Thread == thread {
			return float64(w.Count) / float64(t.Trials)
		}
	}
	return 0
}

// RunTrials runs n copies of the scenario, trial i seeded with the scenario
// seed plus i, using at most workers goroutines. It stops at the first
// cancellation of ctx.
func (sc *Scenario) RunTrials(ctx context.Context, n, workers int, opts ...donsched.Option) (*Tally, error) {
	if n <= 0 {
		return nil, fmt.Errorf("trials: need at least one trial, got %d", n)
	}

	var (
		wins   pb.MapOf[winKey, int64]
		failed atomic.Int64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range n {
		g.Go(func() error {
			trialOpts := append(slices.Clone(opts), donsched.WithSeed(sc.Seed+uint64(i)))
			res, err := sc.Run(ctx, trialOpts...)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			if !res.Passed() {
				failed.Add(1)
			}
			for _, st := range res.Steps {
				if st.Op == OpNext && st.Winner != "" {
					increment(&wins, winKey{step: st.Index, thread: st.Winner})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tally := &Tally{Trials: n, Failed: int(failed.Load())}
	wins.Range(func(k winKey, count int64) bool {
		tally.Wins = append(tally.Wins, Win{Step: k.step, Thread: k.thread, Count: count})
		return true
	})
	slices.SortFunc(tally.Wins, func(a, b Win) int {
		return cmp.Or(
			cmp.Compare(a.Step, b.Step),
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Thread, b.Thread),
		)
	})
	return tally, nil
}

func increment(m *pb.MapOf[winKey, int64], key winKey) {
	m.ProcessEntry(
		key,
		func(l *pb.EntryOf[winKey, int64]) (*pb.EntryOf[winKey, int64], int64, bool) {
			if l != nil {
				return &pb.EntryOf[winKey, int64]{Value: l.Value + 1}, l.Value + 1, true
			}
			return &pb.EntryOf[winKey, int64]{Value: 1}, 1, false
		},
	)
}

package donsched

import (
	"log/slog"
	"math/rand/v2"
)

// Options holds configuration options for the [Scheduler].
type Options struct {
	Policy Policy
	Rand   *rand.Rand
	Logger *slog.Logger
	Events EventHook
}

// Option is a function that configures [Options].
type Option func(*Options)

// WithPolicy sets the dequeue policy of the [Scheduler]. The default is
// [Policies].MaxPriorityFifo.
func WithPolicy(p Policy) Option {
	return func(o *Options) {
		o.Policy = p
	}
}

// WithSeed makes lottery draws reproducible by seeding the random source
// deterministically.
func WithSeed(seed uint64) Option {
	return func(o *Options) {
		o.Rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithRand sets the random source used by lottery draws. The scheduler takes
// ownership of r; it must not be used elsewhere concurrently.
func WithRand(r *rand.Rand) Option {
	return func(o *Options) {
		o.Rand = r
	}
}

// WithLogger sets the structured logger for the [Scheduler].
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithEventHook sets the event hook for the [Scheduler].
func WithEventHook(hook EventHook) Option {
	return func(o *Options) {
		o.Events = hook
	}
}

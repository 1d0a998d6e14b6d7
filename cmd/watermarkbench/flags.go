package main

import (
	"github.com/urfave/cli/v2"
)

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Minimum log level (debug, info, warn, error); empty keeps the preset default",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of elements per workload",
			EnvVars: []string{"BENCH_COUNT"},
			Value:   1_000_000,
		},
		&cli.IntFlag{
			Name:    "batch",
			Usage:   "Batch size of the interleaved workload; each batch inserts evens, then odds",
			EnvVars: []string{"BENCH_BATCH"},
			Value:   1000,
		},
		&cli.IntFlag{
			Name:    "jitter",
			Usage:   "Maximum displacement of an element in the near-monotonic workload",
			EnvVars: []string{"BENCH_JITTER"},
			Value:   256,
		},
		&cli.Int64Flag{
			Name:    "seed",
			Usage:   "Random seed for the near-monotonic workload",
			EnvVars: []string{"BENCH_SEED"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "rounds",
			Usage:   "Times each workload runs against each target",
			EnvVars: []string{"BENCH_ROUNDS"},
			Value:   3,
		},
		&cli.StringSliceFlag{
			Name:    "workload",
			Aliases: []string{"w"},
			Usage:   "Workloads to run (default all): " + workloadNamesUsage(),
			EnvVars: []string{"BENCH_WORKLOADS"},
		},
	}
}

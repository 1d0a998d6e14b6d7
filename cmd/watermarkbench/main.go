package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "watermarkbench",
		Usage: "Compare watermark set throughput and memory against a roaring bitmap",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the insert and contains workloads",
				Flags:  runFlags(),
				Action: run,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

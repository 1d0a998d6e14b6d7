package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "emitter",
		Usage: "Emit sequence-numbered events to Kafka through the sliding window",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Emit every sequence in [start..end], resuming from the last checkpoint",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove",
				Usage:  "Remove the checkpoint of a stream",
				Flags:  removeFlags(),
				Action: remove,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

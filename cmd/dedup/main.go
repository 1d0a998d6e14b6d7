package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dedup",
		Usage: "Forward each sequence-numbered event from Kafka once",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the dedup consumer. Kafka consumer settings are read from KAFKA_* environment variables",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove",
				Usage:  "Remove the dedup checkpoint of a stream",
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

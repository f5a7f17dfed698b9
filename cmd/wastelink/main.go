// Command wastelink runs single lifecycle operations against the configured
// store: each invocation loads the snapshot, performs one operation, persists
// and exits.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"wastelink/internal/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "wastelink",
		Usage: "Waste pickup marketplace lifecycle tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-prefix",
				Aliases: []string{"p"},
				Usage:   "Environment variable prefix",
				Value:   config.DefaultPrefix,
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write Prometheus metrics for the run to this textfile",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Emit JSON trace spans on stderr",
			},
		},
		Commands: []*cli.Command{
			accountCommand,
			requestCommand,
			requestIDCommand,
		},
	}
}

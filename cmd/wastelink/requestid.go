package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"wastelink/internal/requestid"
)

var requestIDCommand = &cli.Command{
	Name:  "requestid",
	Usage: "Preview generated request identifiers without touching the store",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of IDs to generate",
			Value:   1,
		},
		&cli.StringFlag{
			Name:  "prefix",
			Value: requestid.DefaultPrefix,
		},
	},
	Action: func(c *cli.Context) error {
		gen := requestid.New(requestid.WithPrefix(c.String("prefix")))
		for range c.Int("count") {
			fmt.Fprintln(c.App.Writer, gen.Generate(nil).ID)
		}
		return nil
	},
}

package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"wastelink/internal/core"
	"wastelink/pkg/domain"
)

var profileFlags = []cli.Flag{
	&cli.StringFlag{Name: "name", Usage: "Display name"},
	&cli.StringFlag{Name: "email", Usage: "Contact email, unique per account"},
	&cli.StringFlag{Name: "phone"},
	&cli.StringFlag{Name: "address"},
	&cli.StringFlag{Name: "city"},
	&cli.Float64Flag{Name: "lat", Usage: "Latitude"},
	&cli.Float64Flag{Name: "lon", Usage: "Longitude"},
	&cli.StringSliceFlag{Name: "price", Usage: "Collector price per kg as material=price; repeatable"},
}

var accountCommand = &cli.Command{
	Name:  "account",
	Usage: "Manage customer and collector accounts",
	Subcommands: []*cli.Command{
		{
			Name:  "register",
			Usage: "Register a new account",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "role", Usage: "customer or collector", Required: true},
			}, profileFlags...),
			Action: func(c *cli.Context) error {
				prices, err := parsePrices(c.StringSlice("price"))
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.Directory().RegisterAccount(ctx, core.RegisterAccountInput{
						Role:      domain.Role(c.String("role")),
						Name:      c.String("name"),
						Email:     c.String("email"),
						Phone:     c.String("phone"),
						Address:   c.String("address"),
						City:      c.String("city"),
						Latitude:  optionalFloat(c, "lat"),
						Longitude: optionalFloat(c, "lon"),
						Prices:    prices,
					})
				})
			},
		},
		{
			Name:      "update",
			Usage:     "Change profile fields of an account",
			ArgsUsage: "ACCOUNT_ID",
			Flags:     profileFlags,
			Action: func(c *cli.Context) error {
				id := c.Args().First()
				if id == "" {
					return errors.New("account id argument required")
				}
				prices, err := parsePrices(c.StringSlice("price"))
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.Directory().UpdateProfile(ctx, id, core.ProfileUpdate{
						Name:      optionalString(c, "name"),
						Email:     optionalString(c, "email"),
						Phone:     optionalString(c, "phone"),
						Address:   optionalString(c, "address"),
						City:      optionalString(c, "city"),
						Latitude:  optionalFloat(c, "lat"),
						Longitude: optionalFloat(c, "lon"),
						Prices:    prices,
					})
				})
			},
		},
		{
			Name:      "deactivate",
			Usage:     "Deactivate an account",
			ArgsUsage: "ACCOUNT_ID",
			Action: func(c *cli.Context) error {
				id := c.Args().First()
				if id == "" {
					return errors.New("account id argument required")
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.Directory().Deactivate(ctx, id)
				})
			},
		},
		{
			Name:      "get",
			Usage:     "Show one account",
			ArgsUsage: "ACCOUNT_ID",
			Action: func(c *cli.Context) error {
				id := c.Args().First()
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.Directory().GetAccount(ctx, id)
				})
			},
		},
		{
			Name:  "list",
			Usage: "List active accounts of a role",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "role", Value: string(domain.RoleCollector)},
			},
			Action: func(c *cli.Context) error {
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.Directory().ActiveAccountsByRole(ctx, domain.Role(c.String("role")))
				})
			},
		},
	},
}

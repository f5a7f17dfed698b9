package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"wastelink/internal/core"
	"wastelink/pkg/domain"
)

var collectorFlag = &cli.StringFlag{Name: "collector", Usage: "Collector account id", Required: true}

var requestCommand = &cli.Command{
	Name:  "request",
	Usage: "Create and move pickup requests through their lifecycle",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a pickup request",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "customer", Required: true},
				&cli.StringFlag{Name: "collector", Usage: "Preferred collector"},
				&cli.StringFlag{Name: "address"},
				&cli.StringFlag{Name: "city"},
				&cli.StringFlag{Name: "date", Usage: "Pickup date, YYYY-MM-DD"},
				&cli.StringFlag{Name: "time", Usage: "Pickup time preference"},
				&cli.StringFlag{Name: "notes", Usage: "Special instructions"},
				&cli.StringSliceFlag{Name: "item", Usage: "Waste item as material:kg; repeatable", Required: true},
			},
			Action: func(c *cli.Context) error {
				items, err := parseItems(c.StringSlice("item"))
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.CreateRequest(ctx, core.CreateRequestInput{
						CustomerID:          c.String("customer"),
						CollectorID:         optionalString(c, "collector"),
						PickupAddress:       c.String("address"),
						PickupCity:          c.String("city"),
						PickupDate:          c.String("date"),
						PickupTime:          c.String("time"),
						SpecialInstructions: c.String("notes"),
						Items:               items,
					})
				})
			},
		},
		{
			Name:      "assign",
			Usage:     "Claim a pending request for a collector",
			ArgsUsage: "REQUEST_ID",
			Flags:     []cli.Flag{collectorFlag},
			Action: func(c *cli.Context) error {
				id, err := requestIDArg(c)
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					n, err := svc.AssignCollector(ctx, id, c.String("collector"))
					return map[string]int{"affected": n}, err
				})
			},
		},
		collectorAction("accept", "Accept an assigned request", (*core.Service).AcceptRequest),
		collectorAction("reject", "Reject an assigned request", (*core.Service).RejectRequest),
		collectorAction("complete", "Complete an accepted request", (*core.Service).CompleteRequest),
		{
			Name:      "status",
			Usage:     "Cancel a request as its customer or assigned collector",
			ArgsUsage: "REQUEST_ID",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "actor", Required: true},
				&cli.StringFlag{Name: "status", Value: string(domain.StatusCancelled)},
			},
			Action: func(c *cli.Context) error {
				id, err := requestIDArg(c)
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.UpdateStatus(ctx, id, c.String("actor"), domain.RequestStatus(c.String("status")))
				})
			},
		},
		{
			Name:      "get",
			Usage:     "Show one request by store id or --rid",
			ArgsUsage: "[REQUEST_ID]",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "rid", Usage: "Human-readable request identifier"},
			},
			Action: func(c *cli.Context) error {
				if rid := c.String("rid"); rid != "" {
					return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
						return svc.GetRequestByRequestID(ctx, rid)
					})
				}
				id, err := requestIDArg(c)
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.GetRequest(ctx, id)
				})
			},
		},
		{
			Name:  "list",
			Usage: "List a customer's or a collector's requests",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "customer"},
				&cli.StringFlag{Name: "collector"},
				&cli.StringFlag{Name: "status", Usage: "Restrict a customer listing to one status"},
				&cli.BoolFlag{Name: "pending", Usage: "Only the collector's pending requests"},
			},
			Action: func(c *cli.Context) error {
				customer, collector := c.String("customer"), c.String("collector")
				if (customer == "") == (collector == "") {
					return errors.New("pass exactly one of --customer or --collector")
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					switch {
					case customer != "":
						var status *domain.RequestStatus
						if c.IsSet("status") {
							s := domain.RequestStatus(c.String("status"))
							status = &s
						}
						return svc.ListByCustomer(ctx, customer, status)
					case c.Bool("pending"):
						return svc.ListPendingForCollector(ctx, collector)
					default:
						return svc.ListAssignedToCollector(ctx, collector)
					}
				})
			},
		},
		{
			Name:  "open",
			Usage: "List unassigned pending requests",
			Flags: []cli.Flag{&cli.StringFlag{Name: "city"}},
			Action: func(c *cli.Context) error {
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.ListOpenRequests(ctx, c.String("city"))
				})
			},
		},
		{
			Name:      "quote",
			Usage:     "Estimate a collector's payout for a request",
			ArgsUsage: "REQUEST_ID",
			Flags:     []cli.Flag{collectorFlag},
			Action: func(c *cli.Context) error {
				id, err := requestIDArg(c)
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
					return svc.CollectorQuote(ctx, id, c.String("collector"))
				})
			},
		},
	},
}

type collectorOp func(*core.Service, context.Context, int64, string) (core.WasteRequest, error)

func collectorAction(name, usage string, op collectorOp) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "REQUEST_ID",
		Flags:     []cli.Flag{collectorFlag},
		Action: func(c *cli.Context) error {
			id, err := requestIDArg(c)
			if err != nil {
				return err
			}
			return withService(c, func(ctx context.Context, svc *core.Service) (any, error) {
				return op(svc, ctx, id, c.String("collector"))
			})
		},
	}
}

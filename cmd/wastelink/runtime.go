package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"wastelink/internal/config"
	"wastelink/internal/core"
	"wastelink/pkg/domain"
)

// withService opens the configured store, runs fn and prints its result as
// JSON. The store is closed, and therefore persisted, before returning.
func withService(c *cli.Context, fn func(ctx context.Context, svc *core.Service) (any, error)) (err error) {
	cfg, err := config.Load(c.String("env-prefix"))
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(c.App.ErrWriter)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	opts := []core.Option{
		core.WithLogger(core.NewLogrusLogger(logger)),
		core.WithRequestIDPrefix(cfg.RequestIDPrefix),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(registry, "")),
	}
	if c.Bool("trace") {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(c.App.ErrWriter)))
	}
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		opts = append(opts, core.WithAuditRecorder(core.NewLogAuditRecorder(core.NewLogrusLogger(logger))))
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := core.OpenService(ctx, cfg.Storage(), core.NewDefaultRulesEngine(), opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := svc.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("close store: %w", closeErr)
		}
		if path := c.String("metrics-file"); path != "" {
			if writeErr := prometheus.WriteToTextfile(path, registry); writeErr != nil && err == nil {
				err = fmt.Errorf("write metrics: %w", writeErr)
			}
		}
	}()

	result, err := fn(ctx, svc)
	if err != nil {
		return describe(err)
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// describe prefixes domain failures with their kind so scripts can match on it.
func describe(err error) error {
	if kind := domain.KindOf(err); kind != "" {
		return cli.Exit(fmt.Sprintf("%s: %v", kind, err), exitCode(kind))
	}
	return err
}

func exitCode(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return 2
	case domain.KindNotFound:
		return 3
	case domain.KindForbidden:
		return 4
	case domain.KindConflict:
		return 5
	default:
		return 1
	}
}

func requestIDArg(c *cli.Context) (int64, error) {
	raw := c.Args().First()
	if raw == "" {
		return 0, errors.New("request id argument required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid request id %q", raw)
	}
	return id, nil
}

// parseItems reads "material:kg" pairs.
func parseItems(values []string) ([]core.ItemInput, error) {
	items := make([]core.ItemInput, 0, len(values))
	for _, v := range values {
		material, qty, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("item %q must look like material:kg", v)
		}
		quantity, err := strconv.ParseFloat(strings.TrimSpace(qty), 64)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", v, err)
		}
		items = append(items, core.ItemInput{WasteType: domain.Material(strings.ToLower(strings.TrimSpace(material))), Quantity: quantity})
	}
	return items, nil
}

// parsePrices reads "material=price" pairs.
func parsePrices(values []string) (map[domain.Material]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	prices := make(map[domain.Material]float64, len(values))
	for _, v := range values {
		material, raw, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("price %q must look like material=price", v)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", v, err)
		}
		prices[domain.Material(strings.ToLower(strings.TrimSpace(material)))] = price
	}
	return prices, nil
}

func optionalString(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

func optionalFloat(c *cli.Context, name string) *float64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Float64(name)
	return &v
}

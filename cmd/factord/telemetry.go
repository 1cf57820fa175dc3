package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	goFactor "github.com/MrEthical07/goFactor"
	otelexport "github.com/MrEthical07/goFactor/metrics/export/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/MrEthical07/goFactor"

// startTelemetry publishes engine metrics through reader. The returned
// func unregisters the instruments and shuts the provider down.
func startTelemetry(reader sdkmetric.Reader, engine *goFactor.Engine) (func(context.Context) error, error) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := otelexport.New(provider.Meter(meterName), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	return func(ctx context.Context) error {
		return errors.Join(exp.Close(), provider.Shutdown(ctx))
	}, nil
}

// stdoutReader periodically writes metrics as JSON to stdout.
func stdoutReader(cfg config) (sdkmetric.Reader, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
	if err != nil {
		return nil, fmt.Errorf("stdout metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.OTelInterval)), nil
}

// Package otelsetup builds OpenTelemetry trace and meter providers.
// Nothing is exported unless an endpoint or stdout export is configured.
package otelsetup

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "matrun"

type Options struct {
	Endpoint    string
	Insecure    bool
	Stdout      bool
	ServiceName string
	CAFile      string
	CertFile    string
	KeyFile     string
}

func DefaultOptions() *Options {
	return &Options{
		ServiceName: defaultServiceName,
	}
}

func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Endpoint, "otel-endpoint", o.Endpoint, "OTLP gRPC endpoint to export traces and metrics to")
	fs.BoolVar(&o.Insecure, "otel-insecure", o.Insecure, "Disable TLS for the OTLP endpoint")
	fs.BoolVar(&o.Stdout, "otel-stdout", o.Stdout, "Export traces and metrics to stdout")
	fs.StringVar(&o.ServiceName, "otel-service-name", o.ServiceName, "Service name reported to the OTLP endpoint")
	fs.StringVar(&o.CAFile, "otel-ca-file", o.CAFile, "CA bundle used to verify the OTLP endpoint")
	fs.StringVar(&o.CertFile, "otel-cert-file", o.CertFile, "Client certificate for the OTLP endpoint")
	fs.StringVar(&o.KeyFile, "otel-key-file", o.KeyFile, "Client key for the OTLP endpoint")
}

// Enabled reports whether any exporter is configured.
func (o *Options) Enabled() bool {
	return o.Endpoint != "" || o.Stdout
}

func (o *Options) getTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read otel ca file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in `%s`", o.CAFile)
		}

		cfg.RootCAs = pool
	}

	if o.CertFile != "" || o.KeyFile != "" {
		if o.CertFile == "" || o.KeyFile == "" {
			return nil, errors.New("otel client certificate requires both cert and key file")
		}

		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load otel client certificate: %w", err)
		}

		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Providers holds the tracer and meter providers used for a run.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// Shutdown flushes and stops all configured exporters.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}

	return errors.Join(errs...)
}

// Build returns noop providers if no exporter is configured.
func (o *Options) Build(ctx context.Context) (*Providers, error) {
	p := &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}

	if !o.Enabled() {
		return p, nil
	}

	tp, err := o.BuildTraceProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace provider: %w", err)
	}

	p.TracerProvider = tp
	p.shutdown = append(p.shutdown, tp.Shutdown)

	mp, err := o.BuildMeterProvider(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build meter provider: %w", err)
	}

	p.MeterProvider = mp
	p.shutdown = append(p.shutdown, mp.Shutdown)

	return p, nil
}

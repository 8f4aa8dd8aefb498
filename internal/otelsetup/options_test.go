package otelsetup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestBindFlags(t *testing.T) {
	opts := DefaultOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--otel-endpoint", "localhost:4317", "--otel-insecure"}))
	assert.Equal(t, "localhost:4317", opts.Endpoint)
	assert.True(t, opts.Insecure)
	assert.Equal(t, "matrun", opts.ServiceName)
	assert.True(t, opts.Enabled())
}

func TestBuildDisabled(t *testing.T) {
	p, err := DefaultOptions().Build(context.Background())
	require.NoError(t, err)

	assert.IsType(t, tracenoop.TracerProvider{}, p.TracerProvider)
	assert.IsType(t, metricnoop.MeterProvider{}, p.MeterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBuildStdout(t *testing.T) {
	opts := DefaultOptions()
	opts.Stdout = true

	p, err := opts.Build(context.Background())
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider)
	assert.IsType(t, &sdkmetric.MeterProvider{}, p.MeterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestGetTLSConfig(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(invalid, []byte("not a certificate"), 0600))

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "system roots", opts: Options{}},
		{name: "missing ca file", opts: Options{CAFile: filepath.Join(dir, "missing.pem")}, wantErr: true},
		{name: "invalid ca file", opts: Options{CAFile: invalid}, wantErr: true},
		{name: "cert without key", opts: Options{CertFile: invalid}, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := test.opts.getTLSConfig()
			if test.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Nil(t, cfg.RootCAs)
		})
	}
}

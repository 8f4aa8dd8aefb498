// Package logsetup builds the structured logger used across matrun.
package logsetup

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Verbose  int8
	Encoding string
}

// DefaultOptions enables debug logs if MATRUN_DEBUG or RUNNER_DEBUG is set.
func DefaultOptions() *Options {
	opts := &Options{
		Encoding: "console",
	}

	if os.Getenv("MATRUN_DEBUG") != "" || os.Getenv("RUNNER_DEBUG") != "" {
		opts.Verbose = 10
	}

	return opts
}

func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.Int8VarP(&o.Verbose, "verbose", "v", o.Verbose, "Log verbosity level. With `0` only errors are visible while 127 is the most verbose level.")
	fs.StringVar(&o.Encoding, "log-encoding", o.Encoding, "Log encoding format, one of console|json")
}

func (o *Options) Validate() error {
	switch o.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log encoding `%s`, one of console|json", o.Encoding)
	}

	if o.Verbose < 0 {
		return fmt.Errorf("verbosity must not be negative")
	}

	return nil
}

// Build returns a logr logger backed by zap writing to stderr.
// Step output is written to stdout so logs never interleave with it.
func (o *Options) Build() (logr.Logger, zap.Config, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if err := o.Validate(); err != nil {
		return logr.Discard(), zapConfig, err
	}

	zapConfig.Encoding = o.Encoding
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.Level(-1 * o.Verbose))
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	zapConfig.EncoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendInt(int(l) * -1)
	}

	zapLog, err := zapConfig.Build()
	if err != nil {
		return logr.Discard(), zapConfig, err
	}

	return zapr.NewLogger(zapLog), zapConfig, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/internal/logsetup"
	"github.com/raffis/matrun/internal/styles"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

var (
	version = "0.0.0-dev"
	commit  = "none"
	date    = "unknown"
)

const envPrefix = "MATRUN_"

type rootFlags struct {
	Timeout    time.Duration `env:"TIMEOUT, default=0s"`
	NoColor    bool          `env:"NO_COLOR, default=false"`
	logOptions *logsetup.Options
}

var (
	rootArgs = rootFlags{logOptions: logsetup.DefaultOptions()}
	logger   = logr.Discard()
	stdout   io.Writer
	// envErrs collects failures while loading environment defaults during init.
	envErrs []error
)

var rootCmd = &cobra.Command{
	Use:               "matrun",
	Short:             "Matrix driven pipeline runner",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: runRoot,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}

		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func init() {
	loadEnv(&rootArgs)

	rootCmd.PersistentFlags().DurationVar(&rootArgs.Timeout, "timeout", rootArgs.Timeout, "Abort the command after the given duration, 0 means no timeout.")
	rootCmd.PersistentFlags().BoolVar(&rootArgs.NoColor, "no-color", rootArgs.NoColor || os.Getenv("NO_COLOR") != "", "Disable all color output to the terminal.")
	rootArgs.logOptions.BindFlags(rootCmd.PersistentFlags())
}

// loadEnv fills target from MATRUN_ prefixed environment variables.
// Values loaded here become flag defaults so explicit flags win.
func loadEnv(target any) {
	err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   target,
		Lookuper: envconfig.PrefixLookuper(envPrefix, envconfig.OsLookuper()),
	})

	if err != nil {
		envErrs = append(envErrs, errdefs.NewConfigurationError("invalid environment: %s", err))
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	if err := errors.Join(envErrs...); err != nil {
		return err
	}

	var err error
	logger, _, err = rootArgs.logOptions.Build()
	if err != nil {
		return err
	}

	stdout = styles.Writer(cmd.OutOrStdout(), rootArgs.NoColor)
	return nil
}

// commandContext returns a context bound to the root --timeout.
func commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if rootArgs.Timeout > 0 {
		return context.WithTimeout(ctx, rootArgs.Timeout)
	}

	return context.WithCancel(ctx)
}

// exitError terminates with code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

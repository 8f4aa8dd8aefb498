package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/raffis/matrun/internal/condition"
	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/internal/styles"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/spf13/cobra"
)

var lintCmd = &cobra.Command{
	Use:   "lint [pipeline-file...]",
	Short: "Validate pipeline definitions",
	Long: `Lint decodes each pipeline definition, expands its matrix and compiles every step condition
against the variables of every job. No step is executed.`,
	Example: `  # Lint the pipeline in the current directory
  matrun lint

  # Lint multiple definitions and print the findings as json
  matrun lint -o json ci/*.yaml`,
	RunE: lintRun,
}

type lintFlags struct {
	outputFormat OutputFormat
}

var lintArgs = newLintFlags()

func newLintFlags() lintFlags {
	return lintFlags{
		outputFormat: OutputHuman,
	}
}

func init() {
	lintCmd.Flags().VarP(&lintArgs.outputFormat, "output", "o", "Output format. Choice of: \"human\" or \"json\"")
	rootCmd.AddCommand(lintCmd)
}

type OutputFormat string

const (
	OutputHuman OutputFormat = "human"
	OutputJSON  OutputFormat = "json"
)

func (e *OutputFormat) String() string {
	return string(*e)
}

// Set must have pointer receiver so it doesn't change the value of a copy
func (e *OutputFormat) Set(v string) error {
	switch v {
	case "human", "json":
		*e = OutputFormat(v)
		return nil
	default:
		return fmt.Errorf(`must be one of "human", or "json"`)
	}
}

func (e *OutputFormat) Type() string {
	return "OutputFormat"
}

func lintRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	refs := args
	if len(refs) == 0 {
		refs = []string{".matrun.yaml"}
	}

	evaluator, err := condition.New()
	if err != nil {
		return err
	}

	hasError := false
	res := make(map[string][]string, len(refs))

	for _, ref := range refs {
		var messages []string
		for _, err := range lintPipeline(evaluator, func() (v1beta1.Pipeline, error) {
			return loadPipeline(ctx, []string{ref})
		}) {
			messages = append(messages, err.Error())
		}

		res[ref] = messages
		hasError = hasError || len(messages) > 0

		if lintArgs.outputFormat == OutputHuman {
			if len(messages) == 0 {
				fmt.Fprintf(stdout, "%s... %s\n", styles.Bold.Render(ref), styles.Status("Passed"))
				continue
			}

			fmt.Fprintf(stdout, "%s... %s\n", styles.Bold.Render(ref), styles.Status("Failed"))
			for _, msg := range messages {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", msg)
			}
		}
	}

	if lintArgs.outputFormat == OutputJSON {
		data, err := json.MarshalIndent(res, "", "    ")
		if err != nil {
			return fmt.Errorf("failed to render results into JSON: %w", err)
		}

		fmt.Fprintln(stdout, string(data))
	}

	if hasError {
		return &exitError{code: 1}
	}

	return nil
}

// lintPipeline returns every problem found in the definition.
// It stops at the first error which prevents further checks.
func lintPipeline(evaluator *condition.Evaluator, load func() (v1beta1.Pipeline, error)) []error {
	spec, err := load()
	if err != nil {
		return []error{err}
	}

	jobs, err := matrix.Expand(spec.Spec)
	if err != nil {
		return []error{err}
	}

	_, err = pipeline.NewBuilder(pipeline.WithStepBuilder(func(spec v1beta1.Step) []processor.Bootstraper {
		return nil
	})).Build(spec, "lint")
	if err != nil {
		return []error{err}
	}

	var errs []error
	for _, job := range jobs {
		names := slices.Collect(maps.Keys(job.Vars))

		for _, phase := range spec.Spec.Phases.All() {
			for _, step := range phase.Steps {
				if err := evaluator.Check(step.If, names); err != nil {
					errs = append(errs, fmt.Errorf("job %s step %s/%s: %w", job.Name, phase.Name, step.Name, err))
				}
			}
		}
	}

	return errs
}

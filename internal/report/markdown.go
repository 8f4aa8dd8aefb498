package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/raffis/matrun/internal/pipeline"
)

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// Markdown renders a summary table suitable for pull request comments or job summaries.
func Markdown(w io.Writer, result pipeline.PipelineResult) error {
	fmt.Fprintf(w, "### %s: %s\n\n", escapeCell(result.Name), result.Status)
	fmt.Fprintln(w, "| # | Job | Status | Duration | Failed step | Error |")
	fmt.Fprintln(w, "| --- | --- | --- | --- | --- | --- |")

	for i, job := range result.Jobs {
		errMsg, duration := stringify(job)

		var stepName string
		if step, ok := failedStep(job); ok {
			stepName = fmt.Sprintf("%s/%s", step.Phase, step.Name)
		}

		_, err := fmt.Fprintf(w, "| %d | %s | %s | %s | %s | %s |\n",
			i,
			escapeCell(job.Name),
			job.Status,
			duration,
			escapeCell(stepName),
			escapeCell(errMsg),
		)

		if err != nil {
			return err
		}
	}

	return nil
}

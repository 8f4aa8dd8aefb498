package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/raffis/matrun/internal/matrix"
	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/styles"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}

			return styles.Cell
		})
}

// Table renders one row per job.
func Table(w io.Writer, result pipeline.PipelineResult) error {
	t := newTable("#", "Job", "Status", "Duration", "Failed step", "Error")

	for i, job := range result.Jobs {
		errMsg, duration := stringify(job)

		var stepName string
		if step, ok := failedStep(job); ok {
			stepName = fmt.Sprintf("%s/%s", step.Phase, step.Name)
		}

		t.Row(fmt.Sprintf("%d", i), styles.Job(job.Name), styles.Status(string(job.Status)), duration, stepName, errMsg)
	}

	_, err := fmt.Fprintf(w, "%s\n\n%s %s %s\n",
		t.Render(),
		styles.Bold.Render(result.Name),
		styles.Status(string(result.Status)),
		styles.Faint.Render(fmt.Sprintf("(%d jobs, %s)", len(result.Jobs), result.Duration().Round(10*time.Millisecond))),
	)

	return err
}

// Jobs renders the resolved job configs without running them.
func Jobs(w io.Writer, jobs []matrix.JobConfig) error {
	t := newTable("#", "Job", "Axes", "Vars", "Image")

	for _, job := range jobs {
		var axes, vars []string
		for _, name := range job.AxisNames() {
			axes = append(axes, fmt.Sprintf("%s=%s", name, job.Axes[name]))
		}

		for _, name := range slices.Sorted(maps.Keys(job.Vars)) {
			if _, ok := job.Axes[name]; ok {
				continue
			}

			vars = append(vars, fmt.Sprintf("%s=%s", name, job.Vars[name]))
		}

		t.Row(fmt.Sprintf("%d", job.Index), styles.Job(job.Name), strings.Join(axes, " "), strings.Join(vars, " "), job.Image)
	}

	_, err := fmt.Fprintf(w, "%s\n", t.Render())
	return err
}

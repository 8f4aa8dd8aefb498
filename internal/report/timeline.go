package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/processor"
	"github.com/raffis/matrun/internal/styles"
)

// Timeline draws a bar per job relative to the pipeline start.
func Timeline(w io.Writer, result pipeline.PipelineResult, width int) error {
	labelWidth := 10
	for _, job := range result.Jobs {
		labelWidth = max(labelWidth, lipgloss.Width(job.Name))
	}

	barWidth := max(width-labelWidth-4, 30)
	total := result.Duration()
	if total <= 0 {
		total = time.Millisecond
	}

	scale := float64(barWidth) / float64(total)
	divider := styles.Faint.Render("│")

	var timeline strings.Builder
	timeline.WriteString(styles.Faint.Render(fmt.Sprintf("%-*s   0%*s", labelWidth, "Job", barWidth-1, total.Round(time.Millisecond))))
	timeline.WriteString("\n")

	for _, job := range result.Jobs {
		start := 0
		end := 0
		if !job.StartedAt.IsZero() {
			start = int(float64(job.StartedAt.Sub(result.StartedAt)) * scale)
			end = int(float64(job.EndedAt.Sub(result.StartedAt)) * scale)
		}

		start = min(max(start, 0), barWidth)
		end = min(max(end, start+1), barWidth)

		style := styles.Passed
		switch job.Status {
		case processor.StatusFailed:
			style = styles.Failed
		case processor.StatusErrored:
			style = styles.Errored
		case processor.StatusSkipped:
			style = styles.Skipped
		}

		bar := strings.Repeat(" ", start) + style.Render(strings.Repeat("█", max(end-start, 0)))
		fmt.Fprintf(&timeline, "%-*s %s %s\n", labelWidth, job.Name, divider, bar)
	}

	_, err := io.WriteString(w, timeline.String())
	return err
}

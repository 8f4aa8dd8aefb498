package report

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/raffis/matrun/internal/pipeline"
	"github.com/raffis/matrun/internal/processor"
	"golang.org/x/term"
)

// stringify returns the error message and rounded duration of a job.
func stringify(job pipeline.JobResult) (string, string) {
	var errMsg string
	if job.Error != nil {
		errMsg = strings.ReplaceAll(job.Error.Error(), "\n", " ")
	}

	return errMsg, job.Duration().Round(10 * time.Millisecond).String()
}

// failedStep returns the first step which stopped the job.
func failedStep(job pipeline.JobResult) (processor.StepResult, bool) {
	for _, step := range job.Steps() {
		if step.Status == processor.StatusErrored || (step.Status == processor.StatusFailed && !step.ContinuedOnError) {
			return step, true
		}
	}

	return processor.StepResult{}, false
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}

	return width
}

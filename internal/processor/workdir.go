package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

func WithWorkingDir() ProcessorBuilder {
	return func(spec *v1beta1.Step) Bootstraper {
		if spec.WorkingDir == "" {
			return nil
		}

		return &WorkingDir{
			dir: spec.WorkingDir,
		}
	}
}

// WorkingDir runs a step in a directory relative to the job workspace.
type WorkingDir struct {
	dir string
}

func (s *WorkingDir) Bootstrap(pipeline Pipeline, next Next) (Next, error) {
	return func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		dir := s.dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(stepContext.Workspace, dir)
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			return stepContext, fmt.Errorf("%w: failed to create working dir: %w", errdefs.ErrSpawn, err)
		}

		origin := stepContext.Dir
		stepContext.Dir = dir
		stepContext, err := next(ctx, stepContext)
		stepContext.Dir = origin

		return stepContext, err
	}, nil
}

package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingDir(t *testing.T) {
	assert.Nil(t, WithWorkingDir()(&v1beta1.Step{}))

	workspace := t.TempDir()
	absolute := filepath.Join(t.TempDir(), "abs")

	tests := []struct {
		name     string
		dir      string
		expected string
	}{
		{
			name:     "relative to workspace",
			dir:      "src/app",
			expected: filepath.Join(workspace, "src/app"),
		},
		{
			name:     "absolute",
			dir:      absolute,
			expected: absolute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := WithWorkingDir()(&v1beta1.Step{WorkingDir: tt.dir})

			var dir string
			nextFunc, err := processor.Bootstrap(&mockPipeline{}, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				dir = stepContext.Dir
				return stepContext, nil
			})
			require.NoError(t, err)

			out, err := nextFunc(context.Background(), NewContext("job", workspace))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dir)
			assert.Equal(t, workspace, out.Dir)

			info, err := os.Stat(tt.expected)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		})
	}
}

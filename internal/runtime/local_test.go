//go:build !windows

package runtime

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExec(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name           string
		process        *Process
		expectedStdout string
		expectedStderr string
		expectedErr    error
		exitCode       int
	}{
		{
			name: "successful process",
			process: &Process{
				Args: []string{"/bin/sh", "-c", "echo hello; echo world >&2"},
			},
			expectedStdout: "hello\n",
			expectedStderr: "world\n",
		},
		{
			name: "nonzero exit code",
			process: &Process{
				Args: []string{"/bin/sh", "-c", "echo failing; exit 3"},
			},
			expectedStdout: "failing\n",
			exitCode:       3,
		},
		{
			name: "environment is passed",
			process: &Process{
				Args: []string{"/bin/sh", "-c", "echo $FOO"},
				Env:  []string{"FOO=bar"},
			},
			expectedStdout: "bar\n",
		},
		{
			name: "working directory is used",
			process: &Process{
				Args: []string{"/bin/sh", "-c", "pwd -P"},
				Dir:  dir,
			},
			expectedStdout: mustEvalSymlinks(t, dir) + "\n",
		},
		{
			name: "executable not found",
			process: &Process{
				Args: []string{"/does/not/exist"},
			},
			expectedErr: errdefs.ErrSpawn,
		},
		{
			name:        "empty command",
			process:     &Process{},
			expectedErr: errdefs.ErrSpawn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}

			err := NewLocal().Exec(context.Background(), tt.process, stdout, stderr)

			switch {
			case tt.expectedErr != nil:
				assert.ErrorIs(t, err, tt.expectedErr)
			case tt.exitCode != 0:
				var result *Result
				require.True(t, errors.As(err, &result))
				assert.Equal(t, tt.exitCode, result.ExitCode)
			default:
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.expectedStdout, stdout.String())
			assert.Equal(t, tt.expectedStderr, stderr.String())
		})
	}
}

func TestLocalExecKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	startedAt := time.Now()
	err := NewLocal(WithWaitDelay(time.Second)).Exec(ctx, &Process{
		Args: []string{"/bin/sh", "-c", "sleep 30 & sleep 30; wait"},
	}, &bytes.Buffer{}, &bytes.Buffer{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(startedAt), 10*time.Second)
}

func TestPullImagePolicyValidate(t *testing.T) {
	for _, policy := range []PullImagePolicy{PullImagePolicyAlways, PullImagePolicyMissing, PullImagePolicyNever} {
		assert.NoError(t, policy.Validate())
	}

	assert.Error(t, PullImagePolicy("sometimes").Validate())
}

func mustEvalSymlinks(t *testing.T, path string) string {
	t.Helper()
	p, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	_, err = os.Stat(p)
	require.NoError(t, err)
	return p
}

package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestTimeoutBuilder(t *testing.T) {
	tests := []struct {
		name            string
		spec            *v1beta1.Step
		defaultTimeout  time.Duration
		expectNil       bool
		expectedTimeout time.Duration
	}{
		{
			name:      "no timeout returns nil",
			spec:      &v1beta1.Step{},
			expectNil: true,
		},
		{
			name:            "step timeout",
			spec:            &v1beta1.Step{Timeout: metav1.Duration{Duration: 5 * time.Second}},
			expectedTimeout: 5 * time.Second,
		},
		{
			name:            "default timeout",
			spec:            &v1beta1.Step{},
			defaultTimeout:  time.Minute,
			expectedTimeout: time.Minute,
		},
		{
			name:            "step timeout wins over default",
			spec:            &v1beta1.Step{Timeout: metav1.Duration{Duration: 5 * time.Second}},
			defaultTimeout:  time.Minute,
			expectedTimeout: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bootstraper := WithTimeout(tt.defaultTimeout)(tt.spec)

			if tt.expectNil {
				assert.Nil(t, bootstraper)
				return
			}

			timeout, ok := bootstraper.(*Timeout)
			require.True(t, ok)
			assert.Equal(t, tt.expectedTimeout, timeout.timeout)
		})
	}
}

func TestTimeoutBootstrap(t *testing.T) {
	tests := []struct {
		name          string
		timeout       time.Duration
		nextDelay     time.Duration
		expectTimeout bool
	}{
		{
			name:      "next function completes within timeout",
			timeout:   time.Second,
			nextDelay: 10 * time.Millisecond,
		},
		{
			name:      "next function completes immediately",
			timeout:   time.Second,
			nextDelay: 0,
		},
		{
			name:          "next function exceeds timeout",
			timeout:       10 * time.Millisecond,
			nextDelay:     10 * time.Second,
			expectTimeout: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := &Timeout{timeout: tt.timeout}

			next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				select {
				case <-ctx.Done():
					return stepContext, ctx.Err()
				case <-time.After(tt.nextDelay):
					return stepContext, nil
				}
			}

			nextFunc, err := timeout.Bootstrap(&mockPipeline{}, next)
			require.NoError(t, err)

			stepContext := NewContext("job", t.TempDir())
			stepContext.Result = &StepResult{}

			startedAt := time.Now()
			resultCtx, resultErr := nextFunc(context.Background(), stepContext)

			if tt.expectTimeout {
				assert.ErrorIs(t, resultErr, errdefs.ErrTimeout)
				assert.Equal(t, StatusFailed, Classify(resultErr))
				assert.True(t, resultCtx.Result.TimedOut)
				assert.Less(t, time.Since(startedAt), 5*time.Second)
			} else {
				assert.NoError(t, resultErr)
				assert.False(t, resultCtx.Result.TimedOut)
			}
		})
	}
}

func TestTimeoutParentCancellationIsNoTimeout(t *testing.T) {
	timeout := &Timeout{timeout: time.Minute}
	next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		<-ctx.Done()
		return stepContext, ctx.Err()
	}

	nextFunc, err := timeout.Bootstrap(&mockPipeline{}, next)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = nextFunc(ctx, NewContext("job", t.TempDir()))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, errdefs.ErrTimeout))
}

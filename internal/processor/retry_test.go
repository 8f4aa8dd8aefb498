package processor

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestRetryBuilder(t *testing.T) {
	tests := []struct {
		name        string
		spec        *v1beta1.Step
		expectNil   bool
		expectedMax uint64
	}{
		{
			name:      "retry nil returns nil",
			spec:      &v1beta1.Step{},
			expectNil: true,
		},
		{
			name: "retry with exponential backoff",
			spec: &v1beta1.Step{
				Retry: &v1beta1.Retry{
					Exponential: metav1.Duration{Duration: time.Second},
					MaxRetries:  3,
				},
			},
			expectedMax: 3,
		},
		{
			name: "retry with constant backoff",
			spec: &v1beta1.Step{
				Retry: &v1beta1.Retry{
					Constant:   metav1.Duration{Duration: 2 * time.Second},
					MaxRetries: 5,
				},
			},
			expectedMax: 5,
		},
		{
			name: "retry without max retries uses default",
			spec: &v1beta1.Step{
				Retry: &v1beta1.Retry{},
			},
			expectedMax: defaultMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bootstraper := WithRetry()(tt.spec)

			if tt.expectNil {
				assert.Nil(t, bootstraper)
				return
			}

			retry, ok := bootstraper.(*Retry)
			require.True(t, ok)
			assert.Equal(t, tt.expectedMax, retry.max)
			assert.Equal(t, tt.spec.Retry.Exponential.Duration, retry.exponential)
			assert.Equal(t, tt.spec.Retry.Constant.Duration, retry.constant)
		})
	}
}

func TestRetryBootstrap(t *testing.T) {
	tests := []struct {
		name          string
		maxRetries    uint64
		exponential   time.Duration
		constant      time.Duration
		errs          []error
		expectedCalls int
		expectedErr   error
	}{
		{
			name:          "no error from next function",
			maxRetries:    3,
			exponential:   time.Millisecond,
			errs:          []error{nil},
			expectedCalls: 1,
		},
		{
			name:          "failure retries exhausted",
			maxRetries:    2,
			exponential:   time.Millisecond,
			errs:          []error{errdefs.ErrStepFailed, errdefs.ErrStepFailed, errdefs.ErrStepFailed},
			expectedCalls: 3,
			expectedErr:   errdefs.ErrStepFailed,
		},
		{
			name:          "succeeds on retry",
			maxRetries:    3,
			exponential:   time.Millisecond,
			errs:          []error{errdefs.ErrStepFailed, nil},
			expectedCalls: 2,
		},
		{
			name:          "timeout is retried",
			maxRetries:    2,
			constant:      time.Millisecond,
			errs:          []error{errdefs.ErrTimeout, nil},
			expectedCalls: 2,
		},
		{
			name:          "spawn error is not retried",
			maxRetries:    2,
			constant:      time.Millisecond,
			errs:          []error{errdefs.ErrSpawn},
			expectedCalls: 1,
			expectedErr:   errdefs.ErrSpawn,
		},
		{
			name:          "skipped step is not retried",
			maxRetries:    2,
			constant:      time.Millisecond,
			errs:          []error{ErrConditionFalse},
			expectedCalls: 1,
			expectedErr:   ErrConditionFalse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry := &Retry{
				max:         tt.maxRetries,
				exponential: tt.exponential,
				constant:    tt.constant,
			}

			callCount := 0
			next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
				err := tt.errs[min(callCount, len(tt.errs)-1)]
				callCount++
				if err != nil {
					return stepContext, fmt.Errorf("attempt %d: %w", callCount, err)
				}

				return stepContext, nil
			}

			nextFunc, err := retry.Bootstrap(&mockPipeline{}, next)
			require.NoError(t, err)

			_, resultErr := nextFunc(context.Background(), NewContext("job", t.TempDir()))
			assert.Equal(t, tt.expectedCalls, callCount)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, resultErr, tt.expectedErr)
			} else {
				assert.NoError(t, resultErr)
			}
		})
	}
}

func TestRetryBackoffDelay(t *testing.T) {
	retry := &Retry{
		max:      1,
		constant: 20 * time.Millisecond,
	}

	callCount := 0
	next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		callCount++
		return stepContext, errdefs.ErrStepFailed
	}

	nextFunc, err := retry.Bootstrap(&mockPipeline{}, next)
	require.NoError(t, err)

	start := time.Now()
	_, resultErr := nextFunc(context.Background(), NewContext("job", t.TempDir()))

	assert.ErrorIs(t, resultErr, errdefs.ErrStepFailed)
	assert.Equal(t, 2, callCount)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRetryStopsOnCancellation(t *testing.T) {
	retry := &Retry{
		max:      5,
		constant: time.Hour,
	}

	callCount := 0
	ctx, cancel := context.WithCancel(context.Background())
	next := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		callCount++
		cancel()
		return stepContext, errdefs.ErrStepFailed
	}

	nextFunc, err := retry.Bootstrap(&mockPipeline{}, next)
	require.NoError(t, err)

	start := time.Now()
	_, resultErr := nextFunc(ctx, NewContext("job", t.TempDir()))
	assert.ErrorIs(t, resultErr, errdefs.ErrStepFailed)
	assert.Equal(t, 1, callCount)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRetryOnlyLastAttemptEnvPersists(t *testing.T) {
	env := &Env{stepName: "test"}
	retry := &Retry{max: 2, constant: time.Millisecond}

	callCount := 0
	run := func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		callCount++
		f, err := os.OpenFile(stepContext.EnvFile, os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return stepContext, err
		}

		_, err = fmt.Fprintf(f, "ATTEMPT_%d=1\n", callCount)
		_ = f.Close()
		if err != nil {
			return stepContext, err
		}

		if callCount == 1 {
			return stepContext, errdefs.ErrStepFailed
		}

		return stepContext, nil
	}

	retryNext, err := retry.Bootstrap(&mockPipeline{}, run)
	require.NoError(t, err)
	envNext, err := env.Bootstrap(&mockPipeline{}, retryNext)
	require.NoError(t, err)

	out, err := envNext(context.Background(), NewContext("job", t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 2, callCount)
	assert.Equal(t, map[string]string{"ATTEMPT_2": "1"}, out.Envs)
}

package processor

import (
	"context"
	"testing"

	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipStepsBuilder(t *testing.T) {
	assert.Nil(t, WithSkipSteps(nil)(&v1beta1.Step{Name: "test"}))
	assert.Nil(t, WithSkipSteps([]string{"lint"})(&v1beta1.Step{Name: "test"}))
	assert.NotNil(t, WithSkipSteps([]string{"lint", "test"})(&v1beta1.Step{Name: "test"}))
}

func TestSkipSteps(t *testing.T) {
	called := false
	next, err := WithSkipSteps([]string{"test"})(&v1beta1.Step{Name: "test"}).Bootstrap(nil, func(ctx context.Context, stepContext StepContext) (StepContext, error) {
		called = true
		return stepContext, nil
	})
	require.NoError(t, err)

	_, err = next(context.Background(), NewContext("job", t.TempDir()))
	assert.ErrorIs(t, err, ErrConditionFalse)
	assert.Equal(t, StatusSkipped, Classify(err))
	assert.False(t, called)
}

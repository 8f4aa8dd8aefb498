package processor

import (
	"context"
	"io"
	"sync"

	"github.com/raffis/matrun/internal/runtime"
)

type mockPipeline struct{}

func (m *mockPipeline) Name() string {
	return "mock"
}

func (m *mockPipeline) ID() string {
	return "mock-id"
}

type execFunc func(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error

type mockRuntime struct {
	mu        sync.Mutex
	processes []*runtime.Process
	exec      execFunc
}

func (m *mockRuntime) Exec(ctx context.Context, process *runtime.Process, stdout, stderr io.Writer) error {
	m.mu.Lock()
	m.processes = append(m.processes, process)
	m.mu.Unlock()

	if m.exec == nil {
		return nil
	}

	return m.exec(ctx, process, stdout, stderr)
}

func stringPtr(s string) *string {
	return &s
}

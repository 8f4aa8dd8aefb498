package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
)

// StatusStore keeps the last run status per group key.
type StatusStore interface {
	Get(ctx context.Context, key string) (*v1beta1.PipelineRunStatus, error)
	Put(ctx context.Context, key string, status v1beta1.PipelineRunStatus) error
}

// GroupKey identifies the runs which are compared for change triggers.
func GroupKey(pipeline, branch string) string {
	return pipeline + "@" + branch
}

// FileStore is a StatusStore backed by a json file.
// Concurrent processes are serialized with an advisory lock next to the file.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *FileStore) Get(ctx context.Context, key string) (*v1beta1.PipelineRunStatus, error) {
	var status *v1beta1.PipelineRunStatus
	err := s.withLock(ctx, func() error {
		list, err := s.read()
		if err != nil {
			return err
		}

		if v, ok := list.Items[key]; ok {
			status = &v
		}

		return nil
	})

	return status, err
}

func (s *FileStore) Put(ctx context.Context, key string, status v1beta1.PipelineRunStatus) error {
	return s.withLock(ctx, func() error {
		list, err := s.read()
		if err != nil {
			return err
		}

		list.Items[key] = status
		return s.write(list)
	})
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock state file: %w", err)
	}

	if !locked {
		return fmt.Errorf("failed to lock state file %s", s.path)
	}

	defer func() {
		_ = s.lock.Unlock()
	}()

	return fn()
}

func (s *FileStore) read() (*v1beta1.PipelineRunStatusList, error) {
	list := &v1beta1.PipelineRunStatusList{
		Items: make(map[string]v1beta1.PipelineRunStatus),
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return list, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(b) == 0 {
		return list, nil
	}

	if err := json.Unmarshal(b, list); err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", s.path, err)
	}

	if list.Items == nil {
		list.Items = make(map[string]v1beta1.PipelineRunStatus)
	}

	return list, nil
}

func (s *FileStore) write(list *v1beta1.PipelineRunStatusList) error {
	list.APIVersion = v1beta1.GroupVersion.String()
	list.Kind = "PipelineRunStatusList"

	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return os.Rename(tmp.Name(), s.path)
}

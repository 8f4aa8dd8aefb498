package storage

import (
	"context"
	"io"
	"os"
)

func WithFile() LookupHandler {
	return func(ctx context.Context, ref string) (io.ReadCloser, error) {
		return os.Open(ref)
	}
}

// WithStdin reads the manifest from r if ref is "-".
func WithStdin(r io.Reader) LookupHandler {
	return func(ctx context.Context, ref string) (io.ReadCloser, error) {
		if ref != "-" {
			return nil, ErrNotHandled
		}

		return io.NopCloser(r), nil
	}
}

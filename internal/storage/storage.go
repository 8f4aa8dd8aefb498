package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"sigs.k8s.io/yaml"
)

type Interface interface {
	Lookup(ctx context.Context, ref string) (v1beta1.Pipeline, error)
}

// Decoder decodes a pipeline manifest into to.
type Decoder func(manifest []byte, to *v1beta1.Pipeline) error

// LookupHandler opens ref, ErrNotHandled passes ref to the next handler.
type LookupHandler func(ctx context.Context, ref string) (io.ReadCloser, error)

var ErrNotHandled = errors.New("ref not handled")

type storage struct {
	decoder  Decoder
	handlers []LookupHandler
}

func New(decoder Decoder, handlers ...LookupHandler) *storage {
	if decoder == nil {
		decoder = StrictDecoder
	}

	return &storage{
		decoder:  decoder,
		handlers: handlers,
	}
}

// StrictDecoder decodes YAML or JSON and rejects unknown fields.
// apiVersion and kind are optional but must match if set.
func StrictDecoder(manifest []byte, to *v1beta1.Pipeline) error {
	if err := yaml.UnmarshalStrict(manifest, to); err != nil {
		return err
	}

	if to.APIVersion != "" && to.APIVersion != v1beta1.GroupVersion.String() {
		return fmt.Errorf("unsupported apiVersion `%s`, expected %s", to.APIVersion, v1beta1.GroupVersion.String())
	}

	if to.Kind != "" && to.Kind != v1beta1.PipelineKind {
		return fmt.Errorf("unsupported kind `%s`, expected %s", to.Kind, v1beta1.PipelineKind)
	}

	return nil
}

// Lookup loads and decodes the pipeline ref. Any decoding fault is a configuration error.
func (s *storage) Lookup(ctx context.Context, ref string) (v1beta1.Pipeline, error) {
	to := v1beta1.Pipeline{}
	var errs []error

	for _, handler := range s.handlers {
		r, err := handler(ctx, ref)
		if errors.Is(err, ErrNotHandled) {
			continue
		}

		if err != nil {
			errs = append(errs, err)
			continue
		}

		manifest, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return to, fmt.Errorf("failed to read %s: %w", ref, err)
		}

		if err := s.decoder(manifest, &to); err != nil {
			return to, errdefs.NewConfigurationError("%s: %s", ref, err)
		}

		if to.Name == "" {
			to.Name = "pipeline"
		}

		to.SetDefaults()
		return to, nil
	}

	return to, errdefs.NewConfigurationError("could not lookup ref %s: %s", ref, errors.Join(errs...))
}

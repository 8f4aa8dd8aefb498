package mask

import (
	"io"
)

type maskedWriter struct {
	w     io.Writer
	store *SecretStore
}

func (w *maskedWriter) Write(b []byte) (int, error) {
	if _, err := w.w.Write(w.store.Mask(b)); err != nil {
		return 0, err
	}

	return len(b), nil
}

package xio

import (
	"bytes"
	"io"
)

// NewPrefixWriter returns a writer which prepends prefix to every line.
// Writes are expected to start at a line boundary, see LineWriter.
func NewPrefixWriter(w io.Writer, prefix []byte) *PrefixWriter {
	return &PrefixWriter{
		w:      w,
		prefix: bytes.Clone(prefix),
	}
}

type PrefixWriter struct {
	w      io.Writer
	prefix []byte
}

func (w *PrefixWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := len(p)
	var out bytes.Buffer
	out.Grow(n + len(w.prefix))

	for len(p) > 0 {
		out.Write(w.prefix)
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			out.Write(p)
			break
		}

		out.Write(p[:i+1])
		p = p[i+1:]
	}

	if _, err := w.w.Write(out.Bytes()); err != nil {
		return 0, err
	}

	return n, nil
}

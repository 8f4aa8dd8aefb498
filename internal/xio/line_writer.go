package xio

import (
	"bytes"
	"io"
	"sync"
)

// NewLineWriter returns a writer which only forwards complete lines to w.
// Partial lines are buffered until a newline arrives or Flush is called.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{
		w: w,
	}
}

type LineWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := bytes.LastIndexByte(p, '\n')
	if i < 0 {
		w.buf.Write(p)
		return len(p), nil
	}

	w.buf.Write(p[:i+1])
	_, err := w.w.Write(w.buf.Bytes())
	w.buf.Reset()
	if err != nil {
		return 0, err
	}

	w.buf.Write(p[i+1:])
	return len(p), nil
}

// Flush writes a pending partial line terminated by a newline.
func (w *LineWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}

	w.buf.WriteByte('\n')
	_, err := w.w.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

package xio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixWriter(t *testing.T) {
	tests := []struct {
		name     string
		prefix   []byte
		data     []byte
		expected []byte
	}{
		{
			name:     "write with prefix",
			prefix:   []byte("[3.4] "),
			data:     []byte("hello world\n"),
			expected: []byte("[3.4] hello world\n"),
		},
		{
			name:     "every line is prefixed",
			prefix:   []byte("[3.4] "),
			data:     []byte("line1\nline2\n"),
			expected: []byte("[3.4] line1\n[3.4] line2\n"),
		},
		{
			name:     "partial trailing line is prefixed",
			prefix:   []byte("> "),
			data:     []byte("line1\nline2"),
			expected: []byte("> line1\n> line2"),
		},
		{
			name:     "write with empty prefix",
			prefix:   []byte{},
			data:     []byte("hello world"),
			expected: []byte("hello world"),
		},
		{
			name:     "write with empty data",
			prefix:   []byte("[DEBUG] "),
			data:     []byte{},
			expected: nil,
		},
		{
			name:     "write with nil prefix",
			prefix:   nil,
			data:     []byte("test"),
			expected: []byte("test"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prefixWriter := NewPrefixWriter(&buf, tt.prefix)

			n, err := prefixWriter.Write(tt.data)
			assert.NoError(t, err)
			assert.Equal(t, len(tt.data), n)

			if tt.expected == nil {
				assert.Empty(t, buf.Bytes())
			} else {
				assert.Equal(t, tt.expected, buf.Bytes())
			}
		})
	}
}

func TestPrefixWriterDoesNotAliasPrefix(t *testing.T) {
	prefix := make([]byte, 3, 64)
	copy(prefix, "ab ")

	var buf bytes.Buffer
	w := NewPrefixWriter(&buf, prefix)
	_, _ = w.Write([]byte("one\n"))
	_, _ = w.Write([]byte("two\n"))

	assert.Equal(t, "ab ", string(prefix))
	assert.Equal(t, "ab one\nab two\n", buf.String())
}

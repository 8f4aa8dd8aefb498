package xio

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeWriter(t *testing.T) {
	var buf bytes.Buffer
	safeWriter := NewSafeWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n, err := safeWriter.Write([]byte(fmt.Sprintf("writer-%d line-%d\n", i, j)))
				assert.NoError(t, err)
				assert.NotZero(t, n)
			}
		}()
	}

	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 1000)
	for _, line := range lines {
		assert.Regexp(t, `^writer-\d line-\d+$`, line)
	}
}

func TestLivePipeline(t *testing.T) {
	var buf bytes.Buffer
	out := NewSafeWriter(&buf)

	a := NewLineWriter(NewPrefixWriter(out, []byte("[a] ")))
	b := NewLineWriter(NewPrefixWriter(out, []byte("[b] ")))

	_, _ = a.Write([]byte("hel"))
	_, _ = b.Write([]byte("world\n"))
	_, _ = a.Write([]byte("lo\npartial"))
	assert.NoError(t, a.Flush())

	assert.Equal(t, "[b] world\n[a] hello\n[a] partial\n", buf.String())
}

package mask

import (
	"bytes"
	"io"
	"slices"
	"sync"
)

var DefaultMask = []byte("***")

// NewSecretStore returns a store which replaces secrets by placeholder.
// DefaultMask is used if placeholder is empty.
func NewSecretStore(placeholder []byte) *SecretStore {
	if len(placeholder) == 0 {
		placeholder = DefaultMask
	}

	return &SecretStore{
		placeholder: bytes.Clone(placeholder),
	}
}

type SecretStore struct {
	mu          sync.RWMutex
	placeholder []byte
	secrets     [][]byte
}

// AddSecrets registers values to be masked. Empty values are ignored.
func (s *SecretStore) AddSecrets(secrets ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, secret := range secrets {
		if len(secret) == 0 || slices.ContainsFunc(s.secrets, func(b []byte) bool {
			return bytes.Equal(b, secret)
		}) {
			continue
		}

		s.secrets = append(s.secrets, bytes.Clone(secret))
	}

	// longest first so a secret containing another one is masked as a whole
	slices.SortStableFunc(s.secrets, func(a, b []byte) int {
		return len(b) - len(a)
	})
}

// Mask returns b with every known secret replaced.
func (s *SecretStore) Mask(b []byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, secret := range s.secrets {
		b = bytes.ReplaceAll(b, secret, s.placeholder)
	}

	return b
}

func (s *SecretStore) MaskString(str string) string {
	return string(s.Mask([]byte(str)))
}

// Writer masks every write before passing it to w.
// Secrets split across two writes are not detected, wrap w with a line buffered writer.
func (s *SecretStore) Writer(w io.Writer) io.Writer {
	return &maskedWriter{
		w:     w,
		store: s,
	}
}

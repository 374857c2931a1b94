package mask

import (
	"bytes"
	"io"
)

type maskedWriter struct {
	w     io.Writer
	store *SecretStore
}

func (w *maskedWriter) Write(b []byte) (n int, err error) {
	_, err = w.w.Write(w.store.mask(b))
	return len(b), err
}

func (s *SecretStore) mask(b []byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, secret := range s.secrets {
		b = bytes.ReplaceAll(b, secret, s.placeholder)
	}

	return b
}

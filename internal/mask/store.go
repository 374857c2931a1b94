package mask

import (
	"io"
	"slices"
	"sync"

	"github.com/raffis/rigor/internal/xio"
)

var DefaultMask = []byte("***")

func NewSecretStore(mask []byte) *SecretStore {
	if mask == nil {
		mask = DefaultMask
	}

	return &SecretStore{
		placeholder: mask,
	}
}

// SecretStore holds values which must never appear in step output.
type SecretStore struct {
	mu          sync.RWMutex
	placeholder []byte
	secrets     [][]byte
}

// AddSecrets registers secrets. Empty values are ignored.
func (s *SecretStore) AddSecrets(secrets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, secret := range secrets {
		if secret == "" {
			continue
		}

		if slices.ContainsFunc(s.secrets, func(b []byte) bool {
			return string(b) == secret
		}) {
			continue
		}

		s.secrets = append(s.secrets, []byte(secret))
	}

	// Longer secrets first so overlapping values are masked completely.
	slices.SortFunc(s.secrets, func(a, b []byte) int {
		return len(b) - len(a)
	})
}

func (s *SecretStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets)
}

// Writer masks secrets written to w. Output is masked line by line, Flush must be called
// once writing is done.
func (s *SecretStore) Writer(w io.Writer) *xio.LineWriter {
	return xio.NewLineWriter(&maskedWriter{
		w:     w,
		store: s,
	})
}

// Mask returns str with all secrets replaced.
func (s *SecretStore) Mask(str string) string {
	return string(s.mask([]byte(str)))
}

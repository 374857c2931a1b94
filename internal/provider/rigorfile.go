package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const RigorFile = "rigor.yaml"

// RigorFiles are looked up in order when no ref is given.
var RigorFiles = []string{RigorFile, "rigor.yml", "rigor.jsonc", "rigor.json"}

// WithRigorfile opens the first rigor file found in dir.
func WithRigorfile(dir string) Resolver {
	return func(ctx context.Context, ref string) (io.Reader, error) {
		if ref != "" {
			return nil, errors.New("rigorfile: no ref expected")
		}

		for _, name := range RigorFiles {
			f, err := os.Open(filepath.Join(dir, name))
			if err == nil {
				return f, nil
			}

			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}

		return nil, fmt.Errorf("rigorfile: none of %v found in %q: %w", RigorFiles, dir, os.ErrNotExist)
	}
}

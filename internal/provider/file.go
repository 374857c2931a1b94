package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const FileScheme = "file://"

// WithFile opens ref from the local filesystem. If ref is a directory the rigor
// files within it are looked up.
func WithFile() Resolver {
	return func(ctx context.Context, ref string) (io.Reader, error) {
		path := strings.TrimPrefix(ref, FileScheme)
		if path == "" {
			return nil, errors.New("file: no path given")
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}

		if info.IsDir() {
			return WithRigorfile(path)(ctx, "")
		}

		return os.Open(path)
	}
}

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fluxcd/pkg/oci"
)

const OCIScheme = "oci://"

type ociPuller interface {
	Pull(context.Context, string, string, ...oci.PullOption) (*oci.Metadata, error)
}

// WithOCI pulls an artifact referenced as oci://<registry>/<repository>:<tag> and
// reads the rigor file at its root.
func WithOCI(ociClient ociPuller) Resolver {
	return func(ctx context.Context, ref string) (io.Reader, error) {
		if !strings.HasPrefix(ref, OCIScheme) {
			return nil, errors.New("oci: not an oci reference")
		}

		tmp, err := os.MkdirTemp("", "rigor")
		if err != nil {
			return nil, fmt.Errorf("oci: failed to create temp directory: %w", err)
		}
		defer func() {
			_ = os.RemoveAll(tmp)
		}()

		_, err = ociClient.Pull(ctx, strings.TrimPrefix(ref, OCIScheme), tmp)
		if err != nil {
			return nil, fmt.Errorf("oci: failed to pull artifact: %w", err)
		}

		r, err := WithRigorfile(tmp)(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("oci: failed to open manifest: %w", err)
		}

		// The temp directory is gone once we return.
		defer func() {
			_ = r.(io.Closer).Close()
		}()

		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("oci: failed to read manifest: %w", err)
		}

		return bytes.NewReader(b), nil
	}
}

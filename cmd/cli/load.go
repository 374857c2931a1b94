package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/raffis/rigor/internal/ocisetup"
	"github.com/raffis/rigor/internal/pipeline"
	"github.com/raffis/rigor/internal/provider"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// loadFlags are shared by all commands which read a pipeline definition.
type loadFlags struct {
	envFiles   []string `env:"ENV_FILES"`
	ociOptions *ocisetup.Options
}

func newLoadFlags() loadFlags {
	return loadFlags{
		ociOptions: ocisetup.DefaultOptions(),
	}
}

func (f *loadFlags) BindFlags(set *pflag.FlagSet) {
	set.StringSliceVarP(&f.envFiles, "env-file", "", nil, "Load environment variables from dotenv files. Variables already set are not overridden.")
	f.ociOptions.BindFlags(set)
}

// load resolves ref to a pipeline definition. An empty ref looks up the rigor file in
// the working directory, oci:// refs are pulled from a registry and anything else is
// read from the local filesystem.
func (f *loadFlags) load(ctx context.Context, ref string) (v1beta1.Pipeline, error) {
	if len(f.envFiles) > 0 {
		if err := godotenv.Load(f.envFiles...); err != nil {
			return v1beta1.Pipeline{}, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	decoder, err := provider.NewDecoder()
	if err != nil {
		return v1beta1.Pipeline{}, err
	}

	store := provider.New(
		decoder,
		provider.WithRigorfile("."),
		func(ctx context.Context, ref string) (io.Reader, error) {
			if !strings.HasPrefix(ref, provider.OCIScheme) {
				return nil, errors.New("oci: not an oci reference")
			}

			ociClient, err := f.ociOptions.Build(ctx, strings.TrimPrefix(ref, provider.OCIScheme))
			if err != nil {
				return nil, err
			}

			return provider.WithOCI(ociClient)(ctx, ref)
		},
		provider.WithFile(),
	)

	definition, err := store.Resolve(ctx, ref)
	if err != nil {
		return definition, &pipeline.ConfigError{Errs: []error{err}}
	}

	logger.V(1).Info("pipeline definition loaded", "ref", ref, "digest", definition.Annotations[v1beta1.DigestAnnotation])
	return definition, nil
}

func refFromArgs(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return ""
}

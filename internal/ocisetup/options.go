package ocisetup

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	authutils "github.com/fluxcd/pkg/auth/utils"
	"github.com/fluxcd/pkg/oci"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/spf13/pflag"
)

const ProviderGeneric = "generic"

var SupportedProviders = []string{ProviderGeneric, "aws", "azure", "gcp"}

// Provider is the registry provider used to fetch credentials.
type Provider string

func (p *Provider) String() string {
	return string(*p)
}

func (p *Provider) Set(str string) error {
	if !slices.Contains(SupportedProviders, str) {
		return fmt.Errorf("oci provider `%s` is not supported, must be one of: %s", str, strings.Join(SupportedProviders, ", "))
	}

	*p = Provider(str)
	return nil
}

func (p *Provider) Type() string {
	return "provider"
}

type Options struct {
	Creds    string
	Provider Provider
	Timeout  time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Provider: ProviderGeneric,
	}
}

// BindFlags will parse the given pflag.FlagSet
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Creds, "oci-creds", o.Creds, "Credentials for the OCI registry in the format <username>[:<password>] if --oci-provider is generic")
	fs.Var(&o.Provider, "oci-provider", fmt.Sprintf("OCI registry provider (%s)", strings.Join(SupportedProviders, ", ")))
	fs.DurationVar(&o.Timeout, "oci-timeout", o.Timeout, "Retry OCI pulls until the timeout is exceeded")
}

// Build returns a client able to pull the artifact at url.
func (o *Options) Build(ctx context.Context, url string) (*oci.Client, error) {
	ref, err := name.ParseReference(url)
	if err != nil {
		return nil, err
	}

	var auth authn.Authenticator
	opts := oci.DefaultOptions()

	switch {
	case o.Provider == ProviderGeneric && o.Creds != "":
		auth, err = oci.GetAuthFromCredentials(o.Creds)
		if err != nil {
			return nil, fmt.Errorf("could not login with credentials: %w", err)
		}
		opts = append(opts, crane.WithAuth(auth))
	case o.Provider != ProviderGeneric && o.Provider != "":
		auth, err = authutils.GetArtifactRegistryCredentials(ctx, o.Provider.String(), url)
		if err != nil {
			return nil, fmt.Errorf("error during login with provider: %w", err)
		}
		opts = append(opts, crane.WithAuth(auth))
	}

	if o.Timeout != 0 {
		backoff := remote.Backoff{
			Duration: 1.0 * time.Second,
			Factor:   3,
			Jitter:   0.1,
			// the cap is exceeded long before the steps are.
			Steps: 10,
			Cap:   o.Timeout,
		}

		if auth == nil {
			auth, err = authn.DefaultKeychain.Resolve(ref.Context())
			if err != nil {
				return nil, err
			}
		}

		transportOpts, err := oci.WithRetryTransport(ctx, ref, auth, backoff, []string{ref.Context().Scope(transport.PullScope)})
		if err != nil {
			return nil, fmt.Errorf("error setting up transport: %w", err)
		}
		opts = append(opts, transportOpts, oci.WithRetryBackOff(backoff))
	}

	return oci.NewClient(opts), nil
}

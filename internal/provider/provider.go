package provider

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
	kruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

type Interface interface {
	Resolve(ctx context.Context, ref string) (v1beta1.Pipeline, error)
}

// Resolver opens the definition behind ref. Resolvers which do not handle ref return an error.
type Resolver func(ctx context.Context, ref string) (io.Reader, error)

type provider struct {
	decoder  kruntime.Decoder
	handlers []Resolver
}

func New(decoder kruntime.Decoder, handlers ...Resolver) *provider {
	return &provider{
		decoder:  decoder,
		handlers: handlers,
	}
}

// NewDecoder returns a decoder accepting yaml and json pipeline definitions.
func NewDecoder() (kruntime.Decoder, error) {
	scheme := kruntime.NewScheme()
	if err := v1beta1.AddToScheme(scheme); err != nil {
		return nil, err
	}

	return serializer.NewCodecFactory(scheme).UniversalDeserializer(), nil
}

func (s *provider) Resolve(ctx context.Context, ref string) (v1beta1.Pipeline, error) {
	to := v1beta1.Pipeline{}
	var errs []error

	for _, handler := range s.handlers {
		r, err := handler(ctx, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		manifest, err := io.ReadAll(r)
		if closer, ok := r.(io.Closer); ok {
			_ = closer.Close()
		}

		if err != nil {
			return to, err
		}

		if _, _, err := s.decoder.Decode(normalize(manifest), nil, &to); err != nil {
			return to, fmt.Errorf("decode pipeline %q: %w", ref, err)
		}

		if to.Annotations == nil {
			to.Annotations = make(map[string]string, 1)
		}

		to.Annotations[v1beta1.DigestAnnotation] = Digest(manifest)
		return to, nil
	}

	return to, fmt.Errorf("could not lookup ref: %q: %w", ref, errors.Join(errs...))
}

// Digest returns the blake3 digest of a definition.
func Digest(manifest []byte) string {
	sum := blake3.Sum256(manifest)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// normalize strips comments and trailing commas from json definitions.
// Yaml definitions are returned as is.
func normalize(manifest []byte) []byte {
	trimmed := bytes.TrimSpace(manifest)
	if len(trimmed) == 0 || (trimmed[0] != '{' && !bytes.HasPrefix(trimmed, []byte("//")) && !bytes.HasPrefix(trimmed, []byte("/*"))) {
		return manifest
	}

	return jsonc.ToJSON(manifest)
}

package report

import (
	"io"

	"sigs.k8s.io/yaml"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func YAML(w io.Writer, result v1beta1.PipelineResult) error {
	b, err := yaml.Marshal(result)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func JSON(w io.Writer, result v1beta1.PipelineResult) error {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

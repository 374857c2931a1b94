package report

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

type Format string

const (
	FormatNone     Format = "none"
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatTimeline Format = "timeline"
)

var Formats = []Format{FormatNone, FormatTable, FormatJSON, FormatYAML, FormatMarkdown, FormatTimeline}

func (f *Format) String() string {
	return string(*f)
}

func (f *Format) Set(str string) error {
	if !slices.Contains(Formats, Format(str)) {
		return fmt.Errorf("unknown report format `%s`, must be one of: %s", str, strings.Join(formatNames(), ", "))
	}

	*f = Format(str)
	return nil
}

func (f *Format) Type() string {
	return "format"
}

func formatNames() []string {
	names := make([]string, 0, len(Formats))
	for _, format := range Formats {
		names = append(names, string(format))
	}

	return names
}

// Write renders result to w.
func Write(w io.Writer, format Format, result v1beta1.PipelineResult) error {
	switch format {
	case FormatNone, "":
		return nil
	case FormatTable:
		return Table(w, result)
	case FormatJSON:
		return JSON(w, result)
	case FormatYAML:
		return YAML(w, result)
	case FormatMarkdown:
		return Markdown(w, result)
	case FormatTimeline:
		return Timeline(w, result, terminalWidth(w))
	default:
		return fmt.Errorf("unknown report format `%s`", format)
	}
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}

	return defaultWidth
}

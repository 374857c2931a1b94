package styles

import (
	"hash/fnv"

	"charm.land/lipgloss/v2"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var (
	Bold   = lipgloss.NewStyle().Bold(true)
	Faint  = lipgloss.NewStyle().Faint(true)
	Header = lipgloss.NewStyle().Bold(true).PaddingRight(1)
	Cell   = lipgloss.NewStyle().PaddingRight(1)

	Succeeded = lipgloss.NewStyle().Foreground(lipgloss.Color("#87D787"))
	Failed    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	Errored   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D787D7"))
	Cancelled = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	Skipped   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
)

// Palette is used to tell jobs apart in interleaved output.
var Palette = []string{
	"#5FAFFF",
	"#FFAF5F",
	"#87D787",
	"#D787D7",
	"#FFD75F",
	"#5FD7D7",
	"#FF8787",
	"#AF87FF",
}

var symbols = map[v1beta1.Outcome]string{
	v1beta1.OutcomeSucceeded: "✓",
	v1beta1.OutcomeFailed:    "✗",
	v1beta1.OutcomeErrored:   "!",
	v1beta1.OutcomeCancelled: "⊘",
	v1beta1.OutcomeSkipped:   "-",
}

// ForJob picks a stable color from the palette per job id.
func ForJob(id string) lipgloss.Style {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return lipgloss.NewStyle().Foreground(lipgloss.Color(Palette[h.Sum32()%uint32(len(Palette))]))
}

func ForOutcome(outcome v1beta1.Outcome) lipgloss.Style {
	switch outcome {
	case v1beta1.OutcomeSucceeded:
		return Succeeded
	case v1beta1.OutcomeFailed:
		return Failed
	case v1beta1.OutcomeErrored:
		return Errored
	case v1beta1.OutcomeCancelled:
		return Cancelled
	default:
		return Skipped
	}
}

// Outcome renders an outcome with its symbol.
func Outcome(outcome v1beta1.Outcome) string {
	symbol, ok := symbols[outcome]
	if !ok {
		symbol = "?"
	}

	return ForOutcome(outcome).Render(symbol + " " + outcome.String())
}

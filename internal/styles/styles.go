package styles

import (
	"hash/fnv"
	"io"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
)

var (
	Bold  = lipgloss.NewStyle().Bold(true)
	Faint = lipgloss.NewStyle().Faint(true)

	Passed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Bold(true)
	Failed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	Errored = lipgloss.NewStyle().Foreground(lipgloss.Color("#d946ef")).Bold(true)
	Skipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))

	Header = lipgloss.NewStyle().Bold(true).PaddingRight(1)
	Cell   = lipgloss.NewStyle().PaddingRight(1)
)

var jobColors = []string{"#38bdf8", "#a78bfa", "#f472b6", "#fb923c", "#facc15", "#4ade80", "#2dd4bf", "#818cf8"}

// Status renders a status name with its symbol and color.
func Status(status string) string {
	switch status {
	case "Passed":
		return Passed.Render("✓ " + status)
	case "Failed":
		return Failed.Render("✗ " + status)
	case "Errored":
		return Errored.Render("! " + status)
	case "Skipped":
		return Skipped.Render("- " + status)
	default:
		return status
	}
}

// Job renders a job name in a color stable for the name.
func Job(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return lipgloss.NewStyle().Foreground(lipgloss.Color(jobColors[h.Sum32()%uint32(len(jobColors))])).Render(name)
}

// Writer downsamples styled output to what w supports.
// All styling is stripped if noColor is set.
func Writer(w io.Writer, noColor bool) io.Writer {
	cw := colorprofile.NewWriter(w, os.Environ())
	if noColor {
		cw.Profile = colorprofile.NoTTY
	}

	return cw
}

// Package progress defines the coordinator's progress-reporting surface:
// a two-method Reporter interface, plus a console implementation that
// prints banner lines the way the teacher's build manager logs stage
// transitions.
//
// Grounded on bitswalk/ldf's build/manager.go, whose Manager logs a
// structured "count"/"stages" banner when the pipeline is assembled and
// per-job status lines as work progresses; Console here collapses that
// into the single-threaded coordinator's step-by-step narration.
package progress

import (
	"fmt"

	"github.com/bitswalk/releng/internal/logs"
	"github.com/charmbracelet/lipgloss"
)

var bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

// Reporter receives progress narration from the synchronizer and
// builder. Builder and Configurator accept a nil Reporter and then skip
// the narration; NopReporter is a non-nil Reporter that discards it.
type Reporter interface {
	// Report emits a single-line progress message.
	Report(message string)
	// Section announces the start of a new named unit of work (a
	// package build, a sync step) as a banner line.
	Section(title string)
}

// Console is the default Reporter: it logs through a *logs.Logger, and
// additionally prints banner lines for Section to stdout-or-journald,
// whichever the logger is configured for.
type Console struct {
	Logger *logs.Logger
}

// NewConsole returns a Console reporting through logger. If logger is
// nil, a default one is created.
func NewConsole(logger *logs.Logger) *Console {
	if logger == nil {
		logger = logs.NewDefault()
	}
	return &Console{Logger: logger}
}

func (c *Console) Report(message string) {
	c.Logger.Info(message)
}

func (c *Console) Section(title string) {
	c.Logger.Info(bannerStyle.Render(fmt.Sprintf("=== %s ===", title)))
}

// NopReporter discards everything reported to it.
type NopReporter struct{}

func (NopReporter) Report(string) {}
func (NopReporter) Section(string) {}

// Collector is a Reporter that appends every message (Section banners
// included) to a slice, useful for asserting on progress narration in
// tests without capturing real log output.
type Collector struct {
	Messages []string
}

func (c *Collector) Report(message string) {
	c.Messages = append(c.Messages, message)
}

func (c *Collector) Section(title string) {
	c.Messages = append(c.Messages, fmt.Sprintf("=== %s ===", title))
}

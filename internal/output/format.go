package output

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/nocdash/internal/model"
)

// Verbosity controls how much of a report a sink receives.
type Verbosity int

const (
	Minimal  Verbosity = iota // metadata and reading only, no report text
	Standard                  // everything except operator feedback
	Full                      // everything
)

// ParseVerbosity accepts "minimal", "standard" or "full".
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	default:
		return Standard, fmt.Errorf("unknown verbosity %q", s)
	}
}

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Full:
		return "full"
	default:
		return "standard"
	}
}

// FormatReport returns a copy of the report with fields stripped according to
// verbosity. At Minimal: Body and Feedback are cleared (omitted from JSON via
// omitempty). At Standard: Feedback is cleared. At Full: all fields preserved.
// The reading is copied so sinks may not alias the caller's map.
func FormatReport(r model.Report, verbosity Verbosity) model.Report {
	r.Reading = r.Reading.Clone()
	switch verbosity {
	case Minimal:
		r.Body = ""
		r.Feedback = nil
	case Standard:
		r.Feedback = nil
	}
	return r
}

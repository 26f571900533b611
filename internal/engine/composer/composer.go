package composer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

// TimestampLayout is used in report headers and in the reports table.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	noIssues  = "No significant issues detected"
	noActions = "No immediate actions required."
)

// Compose renders the report text for a reading. Output depends only on its
// arguments, so identical inputs and clock give identical text.
func Compose(p *rules.Profile, r model.Reading, v model.Verdict, fired []rules.Rule, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "System Status Report - %s\n\n", now.Format(TimestampLayout))
	fmt.Fprintf(&b, "Overall Status: %s\n", v)

	specs := p.FieldSpecs()
	for _, group := range model.Groups {
		var lines []string
		for _, f := range specs {
			if f.Group != group {
				continue
			}
			val, ok := r.Get(f.Name)
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", f.Label, FormatValue(f, val)))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", group)
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nDiagnosis:\n")
	if len(fired) == 0 {
		fmt.Fprintf(&b, "- %s\n", noIssues)
	}
	for _, rule := range fired {
		fmt.Fprintf(&b, "- %s\n", DiagnosisLine(rule, r))
	}

	b.WriteString("\nRemediation:\n")
	if len(fired) == 0 {
		fmt.Fprintf(&b, "- %s\n", noActions)
	}
	for i, rule := range fired {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s]\n", rule.Diagnosis)
		for _, step := range rule.Remediation {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	return b.String()
}

// DiagnosisLine phrases a fired rule with the observed value, e.g.
// "High CPU utilization (CPU Usage 90% >= 80%)".
func DiagnosisLine(rule rules.Rule, r model.Reading) string {
	f, ok := model.LookupField(rule.Field)
	if !ok {
		return rule.Diagnosis
	}
	val, _ := r.Get(rule.Field)
	if f.Kind == model.Flag {
		return fmt.Sprintf("%s (%s: %s)", rule.Diagnosis, f.Label, FormatValue(f, val))
	}
	return fmt.Sprintf("%s (%s %s %s %s)", rule.Diagnosis, f.Label,
		FormatValue(f, val), rule.Op, FormatValue(f, rule.Bound))
}

// FormatValue renders a value with its unit, e.g. "220 V", "50%", "Pass".
func FormatValue(f model.Field, v float64) string {
	var s string
	switch f.Kind {
	case model.Flag:
		if v >= 1 {
			return f.OnLabel
		}
		return f.OffLabel
	case model.Integer:
		if v == math.Trunc(v) {
			s = humanize.Comma(int64(v))
		} else {
			s = humanize.Commaf(v) // fractional rule bound from an override
		}
	default:
		s = humanize.Commaf(v)
	}
	switch f.Unit {
	case "":
		return s
	case "%", "°C":
		return s + f.Unit
	default:
		return s + " " + f.Unit
	}
}

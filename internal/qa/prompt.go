package qa

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/nocdash/internal/engine/composer"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

// BuildPrompt renders the user message sent to the model: the verdict, every
// field of the profile present in the reading, the profile's threshold rules
// and finally the question. Equal inputs give byte-identical prompts.
func BuildPrompt(p *rules.Profile, r model.Reading, v model.Verdict, question string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "System Status: %s\n", v)
	fmt.Fprintf(&b, "Profile: %s\n", p.Title)

	b.WriteString("\nCurrent Metrics:\n")
	for _, f := range p.FieldSpecs() {
		val, ok := r.Get(f.Name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Label, composer.FormatValue(f, val))
	}

	b.WriteString("\nThreshold Rules:\n")
	if len(p.Rules) == 0 {
		b.WriteString("- none\n")
	}
	for _, rule := range p.Rules {
		fmt.Fprintf(&b, "- %s: %s\n", ruleLine(rule), rule.Diagnosis)
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", strings.TrimSpace(question))
	return b.String()
}

func ruleLine(rule rules.Rule) string {
	f, ok := model.LookupField(rule.Field)
	if !ok {
		return rule.String()
	}
	return fmt.Sprintf("%s %s %s", f.Label, rule.Op, composer.FormatValue(f, rule.Bound))
}

package rules

import (
	"fmt"

	"github.com/crimson-sun/nocdash/internal/model"
)

// Op is a comparator applied as `reading[field] Op bound`.
type Op string

const (
	GT Op = ">"
	GE Op = ">="
	LT Op = "<"
	LE Op = "<="
	EQ Op = "=="
	NE Op = "!="
)

// Valid reports whether op is a known comparator.
func (op Op) Valid() bool {
	switch op {
	case GT, GE, LT, LE, EQ, NE:
		return true
	}
	return false
}

// Holds applies the comparator.
func (op Op) Holds(value, bound float64) bool {
	switch op {
	case GT:
		return value > bound
	case GE:
		return value >= bound
	case LT:
		return value < bound
	case LE:
		return value <= bound
	case EQ:
		return value == bound
	case NE:
		return value != bound
	}
	return false
}

// Rule fires when the named field compares true against Bound. Diagnosis is
// the human phrasing used in reports; Remediation holds the canned
// suggestions printed when the rule fires.
type Rule struct {
	Field       string   `yaml:"field"`
	Op          Op       `yaml:"op"`
	Bound       float64  `yaml:"bound"`
	Diagnosis   string   `yaml:"diagnosis"`
	Remediation []string `yaml:"remediation"`
}

// String renders the rule as "cpu_usage >= 80".
func (r Rule) String() string {
	return fmt.Sprintf("%s %s %g", r.Field, r.Op, r.Bound)
}

// MissingFieldError reports a reading that lacks a field a rule or feature
// vector needs.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("reading is missing field %q", e.Field)
}

// Evaluate returns Abnormal if at least one rule fires, along with the fired
// rules in table order. Every rule's field must be present in the reading;
// the first absent one (in table order) is reported as *MissingFieldError.
func Evaluate(table []Rule, r model.Reading) (model.Verdict, []Rule, error) {
	for _, rule := range table {
		if _, ok := r.Get(rule.Field); !ok {
			return "", nil, &MissingFieldError{Field: rule.Field}
		}
	}

	var fired []Rule
	for _, rule := range table {
		v, _ := r.Get(rule.Field)
		if rule.Op.Holds(v, rule.Bound) {
			fired = append(fired, rule)
		}
	}
	if len(fired) > 0 {
		return model.Abnormal, fired, nil
	}
	return model.Normal, nil, nil
}

package collector

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

// FieldError reports an operator value that cannot be accepted.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %q %s", e.Field, e.Value, e.Reason)
}

// Defaults returns a reading holding every profile field at its default.
func Defaults(p *rules.Profile) model.Reading {
	r := make(model.Reading, len(p.Fields))
	for _, f := range p.FieldSpecs() {
		r[f.Name] = f.Default
	}
	return r
}

// Collect builds a reading for the profile from raw form values. get returns
// the submitted value for a field name; blank values take the field default.
// All problems are reported together.
func Collect(p *rules.Profile, get func(name string) string) (model.Reading, error) {
	r := make(model.Reading, len(p.Fields))
	var errs []error
	for _, f := range p.FieldSpecs() {
		raw := strings.TrimSpace(get(f.Name))
		if raw == "" {
			r[f.Name] = f.Default
			continue
		}
		v, err := parse(f, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r[f.Name] = v
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func parse(f model.Field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &FieldError{Field: f.Name, Value: raw, Reason: "is not a number"}
	}
	switch f.Kind {
	case model.Flag:
		if v != 0 && v != 1 {
			return 0, &FieldError{Field: f.Name, Value: raw, Reason: "must be 0 or 1"}
		}
	case model.Integer:
		if v != math.Trunc(v) {
			return 0, &FieldError{Field: f.Name, Value: raw, Reason: "must be a whole number"}
		}
	}
	if v < f.Min || v > f.Max {
		return 0, &FieldError{Field: f.Name, Value: raw, Reason: fmt.Sprintf("must be between %g and %g", f.Min, f.Max)}
	}
	return v, nil
}
